// Package netdiscovery provides an optional dynamic-neighbour-discovery
// mechanism for netpeer callers: a Network's RemoteIPs can be sourced
// from a Discovery implementation instead of a static config file, so a
// cluster can grow and shrink without restarting every peer.
//
// This sits outside netpeer proper, as a collaborator a caller wires in —
// the broadcast substrate itself never talks to etcd.
package netdiscovery

// Peer is one discovered cluster member eligible to be dialled as a
// netpeer neighbour.
type Peer struct {
	Addr    string // IP address, matching netpeer.Config.RemoteIPs entries
	Cluster string // logical cluster/group name, for multi-cluster deployments
}

// Discovery is the interface for registering this node and discovering
// its peers.
type Discovery interface {
	// Register announces this node's address under cluster, with a TTL
	// lease; the entry disappears automatically if KeepAlive stops (the
	// process died or lost connectivity).
	Register(cluster string, addr string, ttlSeconds int64) error

	// Deregister removes this node's announcement. Callers should invoke
	// it during graceful shutdown, before closing the netpeer listener.
	Deregister(cluster string, addr string) error

	// Peers returns every currently registered member of cluster.
	Peers(cluster string) ([]Peer, error)

	// Watch returns a channel that emits the updated peer list whenever
	// cluster's membership changes.
	Watch(cluster string) <-chan []Peer
}
