package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/faiproject/fai/pkg/identity"
	"github.com/faiproject/fai/pkg/sync"
)

// knownPeerEntry is one trusted peer's key material, keyed by PeerID in
// knownPeersPath's file. There is no directory service to resolve a
// PeerID's keys from (the admission/directory layer is out of scope), so
// every peer this CLI has ever been given a spec for on the command line
// is remembered here, and "serve" consults the same file to authenticate
// incoming handshakes.
type knownPeerEntry struct {
	SigningKeyHex string `json:"signing_key_hex"`
	KeyAgreeHex   string `json:"key_agreement_hex"`
}

func knownPeersPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".fai", "known_peers.json"), nil
}

func loadKnownPeers() (map[string]knownPeerEntry, error) {
	path, err := knownPeersPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]knownPeerEntry{}, nil
		}
		return nil, err
	}

	peers := map[string]knownPeerEntry{}
	if err := json.Unmarshal(data, &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

func saveKnownPeers(peers map[string]knownPeerEntry) error {
	path, err := knownPeersPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(peers, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// rememberPeer records spec's keys under its derived PeerID, so a later
// "serve" invocation can authenticate a handshake claiming that PeerID.
func rememberPeer(spec peerSpec) error {
	peers, err := loadKnownPeers()
	if err != nil {
		return err
	}

	peerID := identity.PeerIDFromKey(spec.signingKey)
	peers[peerID] = knownPeerEntry{
		SigningKeyHex: hex.EncodeToString(spec.signingKey),
		KeyAgreeHex:   hex.EncodeToString(spec.keyAgreement),
	}
	return saveKnownPeers(peers)
}

// knownPeerLookup builds a sync.PeerKeyLookup backed by the known-peers
// file, for use by "serve".
func knownPeerLookup() sync.PeerKeyLookup {
	return func(peerID string) (ed25519.PublicKey, []byte, error) {
		peers, err := loadKnownPeers()
		if err != nil {
			return nil, nil, err
		}
		entry, ok := peers[peerID]
		if !ok {
			return nil, nil, os.ErrNotExist
		}
		signing, err := hex.DecodeString(entry.SigningKeyHex)
		if err != nil {
			return nil, nil, err
		}
		ka, err := hex.DecodeString(entry.KeyAgreeHex)
		if err != nil {
			return nil, nil, err
		}
		return ed25519.PublicKey(signing), ka, nil
	}
}
