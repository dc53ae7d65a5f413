// Package identity manages a peer's Ed25519 signing key and X25519 key
// agreement key, and derives the PeerID used to address it on the sync
// protocol.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/crypto/curve25519"
	"lukechampine.com/blake3"

	"github.com/faiproject/fai/pkg/ferr"
)

// Identity holds a peer's long-term signing and key-agreement material.
type Identity struct {
	SigningPublicKey  ed25519.PublicKey  `json:"signing_public_key"`
	SigningPrivateKey ed25519.PrivateKey `json:"signing_private_key"`

	KeyAgreementPublicKey  [32]byte `json:"key_agreement_public_key"`
	KeyAgreementPrivateKey [32]byte `json:"key_agreement_private_key"`

	peerID string
}

// Generate creates a new identity with fresh key material.
func Generate() (*Identity, error) {
	sigPub, sigPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "identity.Generate", "", err)
	}

	var kaPriv, kaPub [32]byte
	if _, err := rand.Read(kaPriv[:]); err != nil {
		return nil, ferr.Wrap(ferr.IO, "identity.Generate", "", err)
	}
	curve25519.ScalarBaseMult(&kaPub, &kaPriv)

	id := &Identity{
		SigningPublicKey:       sigPub,
		SigningPrivateKey:      sigPriv,
		KeyAgreementPublicKey:  kaPub,
		KeyAgreementPrivateKey: kaPriv,
	}
	id.peerID = computePeerID(id.SigningPublicKey)
	return id, nil
}

// PeerID returns the hex-encoded BLAKE3-256 digest of the signing public
// key. It is the address peers use to identify this identity on the wire
// and in discovery records.
func (id *Identity) PeerID() string {
	if id.peerID == "" {
		id.peerID = computePeerID(id.SigningPublicKey)
	}
	return id.peerID
}

// PeerIDFromKey derives the PeerID any peer would have for a given signing
// public key, without needing the rest of its Identity. Callers resolving a
// peer they've been handed a key for (see PeerKeyLookup) use this to index
// a trust table by PeerID the same way this identity indexes itself.
func PeerIDFromKey(pub ed25519.PublicKey) string {
	return computePeerID(pub)
}

func computePeerID(pub ed25519.PublicKey) string {
	hasher := blake3.New(32, nil)
	hasher.Write(pub)
	return hex.EncodeToString(hasher.Sum(nil))
}

// SaveToFile persists the identity as JSON under restrictive permissions,
// creating parent directories as needed.
func (id *Identity) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return ferr.Wrap(ferr.IO, "identity.SaveToFile", filename, err)
	}

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return ferr.Wrap(ferr.Invalid, "identity.SaveToFile", filename, err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return ferr.Wrap(ferr.IO, "identity.SaveToFile", filename, err)
	}
	return nil
}

// LoadFromFile loads a previously saved identity.
func LoadFromFile(filename string) (*Identity, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferr.Wrap(ferr.NotFound, "identity.LoadFromFile", filename, err)
		}
		return nil, ferr.Wrap(ferr.IO, "identity.LoadFromFile", filename, err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "identity.LoadFromFile", filename, err)
	}
	id.peerID = computePeerID(id.SigningPublicKey)
	return &id, nil
}
