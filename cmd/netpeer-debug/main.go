// Command netpeer-debug starts a bare netpeer.Network against a
// configured neighbour list and prints its subscriber list and health
// snapshot periodically, colorized for quick visual scanning. It exists
// outside the core library purely as an operator aid, in the same spirit
// as a worker application built on top of netpeer.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/arapat/netpeer/netpeer"
	"github.com/fatih/color"
)

func main() {
	name := flag.String("name", "debug-peer", "local peer name, used only for log lines")
	port := flag.Int("port", 9000, "local TCP port to listen on")
	remotes := flag.String("remotes", "", "comma-separated list of remote IPs to dial")
	twoWay := flag.Bool("two-way", false, "promote accepted connections into outbound connections")
	interval := flag.Duration("report-interval", 3*time.Second, "how often to print a health snapshot")
	flag.Parse()

	var remoteIPs []string
	if *remotes != "" {
		remoteIPs = strings.Split(*remotes, ",")
	}

	n, err := netpeer.NewNetwork(netpeer.Config{
		Name:      *name,
		Port:      *port,
		RemoteIPs: remoteIPs,
		TwoWay:    *twoWay,
	}, func(senderAddr, payload string) {
		color.Cyan("[%s] message from %s: %s", *name, senderAddr, payload)
	})
	if err != nil {
		log.Fatalf("failed to start network: %v", err)
	}
	defer n.Close()

	color.Green("listening on :%d, %d initial peer(s) configured", *port, len(remoteIPs))

	for range time.Tick(*interval) {
		printReport(*name, n)
	}
}

func printReport(name string, n *netpeer.Network) {
	subs := n.Subscribers()
	health := n.GetHealth()

	if len(subs) == 0 {
		color.Red("[%s] no live subscriber streams", name)
	} else {
		color.Green("[%s] %d subscriber stream(s): %s", name, len(subs), strings.Join(subs, ", "))
	}

	fmt.Printf("[%s] total=%d msg=%d msg_echo=%d hb=%d hb_echo=%d avg_msg_rtt=%.0fus avg_hb_rtt=%.0fus\n",
		name, health.Total, health.NumMsg, health.NumMsgEcho, health.NumHB, health.NumHBEcho,
		health.AvgRoundtripMsg(), health.AvgRoundtripHeartbeat())
}
