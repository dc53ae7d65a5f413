package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// peerSpec is a network peer as accepted on the command line: its dial
// address plus the public keys needed to complete the Noise handshake,
// since this system has no directory service to resolve a PeerID to keys
// from. "serve" prints a peer's own spec (minus the address) at startup so
// operators can hand it to whoever wants to reach them.
type peerSpec struct {
	addr         string
	signingKey   ed25519.PublicKey
	keyAgreement []byte
}

// parsePeerSpec parses "addr,signing-hex,ka-hex" into a peerSpec.
func parsePeerSpec(s string) (peerSpec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return peerSpec{}, fmt.Errorf("invalid peer %q: expected addr,signing-hex,ka-hex", s)
	}

	signing, err := hex.DecodeString(parts[1])
	if err != nil || len(signing) != ed25519.PublicKeySize {
		return peerSpec{}, fmt.Errorf("invalid peer %q: bad signing key", s)
	}
	ka, err := hex.DecodeString(parts[2])
	if err != nil || len(ka) != 32 {
		return peerSpec{}, fmt.Errorf("invalid peer %q: bad key-agreement key", s)
	}

	return peerSpec{addr: parts[0], signingKey: ed25519.PublicKey(signing), keyAgreement: ka}, nil
}
