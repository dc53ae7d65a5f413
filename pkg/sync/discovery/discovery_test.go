package discovery

import (
	"testing"
	"time"

	"github.com/libp2p/zeroconf/v2"
)

func TestPeerIDFromEntry(t *testing.T) {
	entry := &zeroconf.ServiceEntry{}
	entry.Text = []string{"peerid=abc123", "other=ignored"}

	if got := peerIDFromEntry(entry); got != "abc123" {
		t.Errorf("expected abc123, got %q", got)
	}
}

func TestPeerIDFromEntryMissing(t *testing.T) {
	entry := &zeroconf.ServiceEntry{}
	entry.Text = []string{"other=ignored"}

	if got := peerIDFromEntry(entry); got != "" {
		t.Errorf("expected empty peer id, got %q", got)
	}
}

func TestPeersExcludesExpired(t *testing.T) {
	table := NewTable()
	table.peers["fresh"] = Peer{PeerID: "fresh", LastSeen: time.Now()}
	table.peers["stale"] = Peer{PeerID: "stale", LastSeen: time.Now().Add(-2 * time.Hour)}

	peers := table.Peers()
	if len(peers) != 1 || peers[0].PeerID != "fresh" {
		t.Fatalf("expected only fresh peer, got %+v", peers)
	}
}

func TestLookupExpired(t *testing.T) {
	table := NewTable()
	table.peers["stale"] = Peer{PeerID: "stale", LastSeen: time.Now().Add(-2 * time.Hour)}

	if _, ok := table.Lookup("stale"); ok {
		t.Error("expected stale peer to be considered expired")
	}
}

func TestEvictStale(t *testing.T) {
	table := NewTable()
	table.peers["fresh"] = Peer{PeerID: "fresh", LastSeen: time.Now()}
	table.peers["stale"] = Peer{PeerID: "stale", LastSeen: time.Now().Add(-2 * time.Hour)}

	table.evictStale()

	if _, ok := table.peers["stale"]; ok {
		t.Error("expected stale entry to be evicted")
	}
	if _, ok := table.peers["fresh"]; !ok {
		t.Error("expected fresh entry to survive eviction")
	}
}
