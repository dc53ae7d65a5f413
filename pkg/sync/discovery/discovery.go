// Package discovery finds peers on the local network via mDNS, advertising
// this peer's PeerID and listen port under the service type "_fai._tcp" and
// maintaining a table of recently seen peers.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/zeroconf/v2"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
)

// Peer is a peer discovered on the local network.
type Peer struct {
	PeerID   string
	Addrs    []string
	Port     int
	LastSeen time.Time
}

// Table tracks peers discovered via mDNS, advertises this peer's own
// presence, and expires entries that have not been refreshed within
// constants.DiscoveryTTL.
type Table struct {
	mu    sync.RWMutex
	peers map[string]Peer

	server *zeroconf.Server

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTable creates a discovery table. It does not start advertising or
// browsing until Start is called.
func NewTable() *Table {
	return &Table{
		peers: make(map[string]Peer),
		done:  make(chan struct{}),
	}
}

// Start registers this peer's mDNS service record and begins the
// background browse-and-expire loop. Start may only be called once.
func (t *Table) Start(ctx context.Context, peerID string, port int) error {
	t.mu.Lock()
	if t.ctx != nil {
		t.mu.Unlock()
		return ferr.New(ferr.Invalid, "discovery.Start", "already started")
	}

	server, err := zeroconf.Register(peerID, constants.MDNSServiceName, constants.MDNSDomain, port, []string{"peerid=" + peerID}, nil)
	if err != nil {
		t.mu.Unlock()
		return ferr.Wrap(ferr.Network, "discovery.Start", "", err)
	}
	t.server = server

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	if err := t.browse(t.ctx); err != nil {
		t.Stop()
		return err
	}

	go t.refreshLoop()

	return nil
}

// Stop halts browsing, withdraws this peer's service record, and waits for
// the background loop to exit.
func (t *Table) Stop() error {
	t.mu.Lock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	server := t.server
	t.server = nil
	t.mu.Unlock()

	if server != nil {
		server.Shutdown()
	}

	select {
	case <-t.done:
	case <-time.After(5 * time.Second):
	}

	return nil
}

// Peers returns a snapshot of currently known peers, excluding any entry
// whose LastSeen has exceeded constants.DiscoveryTTL.
func (t *Table) Peers() []Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cutoff := time.Now().Add(-constants.DiscoveryTTL)
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		if p.LastSeen.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the most recently seen record for peerID, if still fresh.
func (t *Table) Lookup(peerID string) (Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.peers[peerID]
	if !ok || time.Since(p.LastSeen) > constants.DiscoveryTTL {
		return Peer{}, false
	}
	return p, true
}

func (t *Table) browse(ctx context.Context) error {
	entries := make(chan *zeroconf.ServiceEntry, 16)
	go t.consume(entries)

	if err := zeroconf.Browse(ctx, constants.MDNSServiceName, constants.MDNSDomain, entries); err != nil {
		return ferr.Wrap(ferr.Network, "discovery.browse", "", err)
	}
	return nil
}

func (t *Table) consume(entries chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		peerID := peerIDFromEntry(entry)
		if peerID == "" {
			continue
		}

		addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
		for _, ip := range entry.AddrIPv4 {
			addrs = append(addrs, ip.String())
		}
		for _, ip := range entry.AddrIPv6 {
			addrs = append(addrs, ip.String())
		}

		t.mu.Lock()
		t.peers[peerID] = Peer{
			PeerID:   peerID,
			Addrs:    addrs,
			Port:     entry.Port,
			LastSeen: time.Now(),
		}
		t.mu.Unlock()
	}
}

func peerIDFromEntry(entry *zeroconf.ServiceEntry) string {
	for _, field := range entry.Text {
		var id string
		if _, err := fmt.Sscanf(field, "peerid=%s", &id); err == nil && id != "" {
			return id
		}
	}
	return ""
}

// refreshLoop re-browses the network every constants.DiscoveryInterval and
// drops peer entries that have aged past constants.DiscoveryTTL.
func (t *Table) refreshLoop() {
	defer close(t.done)

	ticker := time.NewTicker(constants.DiscoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.evictStale()
			if err := t.browse(t.ctx); err != nil {
				continue
			}
		}
	}
}

func (t *Table) evictStale() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-constants.DiscoveryTTL)
	for id, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			delete(t.peers, id)
		}
	}
}
