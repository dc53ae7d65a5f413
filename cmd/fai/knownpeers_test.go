package main

import (
	"crypto/ed25519"
	"testing"

	"github.com/faiproject/fai/pkg/identity"
)

func TestRememberPeerRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	signingPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ka := make([]byte, 32)
	for i := range ka {
		ka[i] = byte(i + 1)
	}
	spec := peerSpec{addr: "127.0.0.1:9000", signingKey: signingPub, keyAgreement: ka}

	if err := rememberPeer(spec); err != nil {
		t.Fatalf("rememberPeer: %v", err)
	}

	lookup := knownPeerLookup()
	peerID := identity.PeerIDFromKey(signingPub)
	gotSigning, gotKA, err := lookup(peerID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !gotSigning.Equal(signingPub) {
		t.Errorf("signing key mismatch")
	}
	if len(gotKA) != 32 {
		t.Errorf("key agreement length = %d, want 32", len(gotKA))
	}
	for i := range ka {
		if gotKA[i] != ka[i] {
			t.Fatalf("key agreement byte %d mismatch", i)
		}
	}
}

func TestKnownPeerLookupUnknownPeer(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	lookup := knownPeerLookup()
	if _, _, err := lookup("nonexistent-peer-id"); err == nil {
		t.Fatal("expected error for unknown peer")
	}
}

func TestLoadKnownPeersEmptyWhenFileMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	peers, err := loadKnownPeers()
	if err != nil {
		t.Fatalf("loadKnownPeers: %v", err)
	}
	if len(peers) != 0 {
		t.Errorf("expected empty map, got %d entries", len(peers))
	}
}
