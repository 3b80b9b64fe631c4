// Package netdiscovery's etcd-backed Discovery implementation.
//
// etcd is used as a distributed phonebook for cluster membership:
//
//	Key:   /netpeer/{cluster}/{addr}
//	Value: JSON-encoded Peer
//
// Registration uses a TTL lease exactly as BX-D-mini-RPC's
// EtcdRegistry does: if this process dies, KeepAlive stops, the lease
// expires, and the entry disappears on its own.
package netdiscovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/netpeer/"

// EtcdDiscovery implements Discovery using etcd v3.
type EtcdDiscovery struct {
	client *clientv3.Client
}

// NewEtcdDiscovery connects to the given etcd endpoints. dialTimeout
// bounds the initial connection attempt; callers in tests or
// environments without a live etcd should pass a short timeout so
// failures surface quickly rather than hanging.
func NewEtcdDiscovery(endpoints []string, dialTimeout time.Duration) (*EtcdDiscovery, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("netdiscovery: failed to connect to etcd: %w", err)
	}
	return &EtcdDiscovery{client: c}, nil
}

func peerKey(cluster, addr string) string {
	return keyPrefix + cluster + "/" + addr
}

// Register puts this node's Peer record under a TTL lease and starts a
// background goroutine draining KeepAlive responses, exactly as
// EtcdRegistry.Register does — the lease must be kept alive for the
// registration to persist, and the response channel must be drained or
// etcd stops sending on it.
func (d *EtcdDiscovery) Register(cluster string, addr string, ttlSeconds int64) error {
	ctx := context.Background()

	lease, err := d.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return fmt.Errorf("netdiscovery: failed to grant lease: %w", err)
	}

	val, err := json.Marshal(Peer{Addr: addr, Cluster: cluster})
	if err != nil {
		return fmt.Errorf("netdiscovery: failed to encode peer record: %w", err)
	}

	if _, err := d.client.Put(ctx, peerKey(cluster, addr), string(val), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("netdiscovery: failed to register: %w", err)
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("netdiscovery: failed to start lease keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes this node's Peer record.
func (d *EtcdDiscovery) Deregister(cluster string, addr string) error {
	_, err := d.client.Delete(context.Background(), peerKey(cluster, addr))
	if err != nil {
		return fmt.Errorf("netdiscovery: failed to deregister: %w", err)
	}
	return nil
}

// Peers queries etcd for every key under cluster's prefix and decodes
// the resulting Peer records, skipping any malformed entries.
func (d *EtcdDiscovery) Peers(cluster string) ([]Peer, error) {
	prefix := keyPrefix + cluster + "/"
	resp, err := d.client.Get(context.Background(), prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("netdiscovery: failed to query peers: %w", err)
	}

	peers := make([]Peer, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var p Peer
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			continue
		}
		peers = append(peers, p)
	}
	return peers, nil
}

// Watch re-fetches the full peer list on every change under cluster's
// prefix, simpler than reasoning about individual watch events at the
// cost of an extra round trip per change.
func (d *EtcdDiscovery) Watch(cluster string) <-chan []Peer {
	ch := make(chan []Peer, 1)
	prefix := keyPrefix + cluster + "/"

	go func() {
		watchChan := d.client.Watch(context.Background(), prefix, clientv3.WithPrefix())
		for range watchChan {
			peers, err := d.Peers(cluster)
			if err != nil {
				continue
			}
			ch <- peers
		}
	}()

	return ch
}
