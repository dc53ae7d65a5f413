// Package noiseik implements the Noise IK handshake used to establish a
// secured session between two fai peers before chunk/commit substreams are
// opened over it.
package noiseik

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/faiproject/fai/pkg/codec/cborcanon"
	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/identity"
	"github.com/flynn/noise"
)

// ClientHello is the initiator's handshake message: it binds the Noise
// session to the dialing peer's PeerID and carries its X25519 static key.
type ClientHello struct {
	Version  uint16 `cbor:"v"`
	From     string `cbor:"from"`  // dialing peer's PeerID
	Nonce    uint64 `cbor:"nonce"` // replay-protection nonce
	NoiseKey []byte `cbor:"noisekey"`
	Proof    []byte `cbor:"proof"` // Ed25519 signature over the canonical fields above
}

// ServerHello is the responder's reply, binding the session to its own
// PeerID in turn.
type ServerHello struct {
	Version  uint16 `cbor:"v"`
	From     string `cbor:"from"`
	Nonce    uint64 `cbor:"nonce"`
	NoiseKey []byte `cbor:"noisekey"`
	Proof    []byte `cbor:"proof"`
}

// Sign signs the ClientHello with the provided Ed25519 private key.
func (ch *ClientHello) Sign(privateKey ed25519.PrivateKey) error {
	sigData, err := cborcanon.EncodeForSigning(ch, "proof")
	if err != nil {
		return fmt.Errorf("encode ClientHello for signing: %w", err)
	}
	ch.Proof = ed25519.Sign(privateKey, sigData)
	return nil
}

// Verify verifies the ClientHello signature using the sender's Ed25519
// public key.
func (ch *ClientHello) Verify(publicKey ed25519.PublicKey) error {
	if len(ch.Proof) == 0 {
		return fmt.Errorf("ClientHello has no proof")
	}
	sigData, err := cborcanon.EncodeForSigning(ch, "proof")
	if err != nil {
		return fmt.Errorf("encode ClientHello for verification: %w", err)
	}
	if !ed25519.Verify(publicKey, sigData, ch.Proof) {
		return fmt.Errorf("ClientHello signature verification failed")
	}
	return nil
}

// Marshal encodes the ClientHello to canonical CBOR.
func (ch *ClientHello) Marshal() ([]byte, error) { return cborcanon.Marshal(ch) }

// Unmarshal decodes the ClientHello from CBOR.
func (ch *ClientHello) Unmarshal(data []byte) error { return cborcanon.Unmarshal(data, ch) }

// Sign signs the ServerHello with the provided Ed25519 private key.
func (sh *ServerHello) Sign(privateKey ed25519.PrivateKey) error {
	sigData, err := cborcanon.EncodeForSigning(sh, "proof")
	if err != nil {
		return fmt.Errorf("encode ServerHello for signing: %w", err)
	}
	sh.Proof = ed25519.Sign(privateKey, sigData)
	return nil
}

// Verify verifies the ServerHello signature using the sender's Ed25519
// public key.
func (sh *ServerHello) Verify(publicKey ed25519.PublicKey) error {
	if len(sh.Proof) == 0 {
		return fmt.Errorf("ServerHello has no proof")
	}
	sigData, err := cborcanon.EncodeForSigning(sh, "proof")
	if err != nil {
		return fmt.Errorf("encode ServerHello for verification: %w", err)
	}
	if !ed25519.Verify(publicKey, sigData, sh.Proof) {
		return fmt.Errorf("ServerHello signature verification failed")
	}
	return nil
}

// Marshal encodes the ServerHello to canonical CBOR.
func (sh *ServerHello) Marshal() ([]byte, error) { return cborcanon.Marshal(sh) }

// Unmarshal decodes the ServerHello from CBOR.
func (sh *ServerHello) Unmarshal(data []byte) error { return cborcanon.Unmarshal(data, sh) }

// Handshake drives one side of a Noise IK exchange and tracks the replay
// state of the session it establishes.
type Handshake struct {
	identity        *identity.Identity
	nonce           uint64
	complete        bool
	noiseKey        []byte // X25519 private key material used for this session
	peerKey         []byte // peer's X25519 public key, learned during the handshake
	noiseState      *noise.HandshakeState
	cipherSuite     noise.CipherSuite
	isInitiator     bool
	sequenceTracker *SequenceTracker
}

// NewHandshake creates a handshake instance bound to id, with a fresh
// random nonce for replay protection.
func NewHandshake(id *identity.Identity) *Handshake {
	nonce := uint64(time.Now().UnixNano())

	var randomBytes [8]byte
	rand.Read(randomBytes[:])
	randomPart := uint64(randomBytes[0])<<56 | uint64(randomBytes[1])<<48 |
		uint64(randomBytes[2])<<40 | uint64(randomBytes[3])<<32 |
		uint64(randomBytes[4])<<24 | uint64(randomBytes[5])<<16 |
		uint64(randomBytes[6])<<8 | uint64(randomBytes[7])
	nonce ^= randomPart

	cipherSuite := noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2b)

	return &Handshake{
		identity:        id,
		nonce:           nonce,
		noiseKey:        make([]byte, 32),
		cipherSuite:     cipherSuite,
		sequenceTracker: NewSequenceTracker(),
	}
}

// NewClientHandshake creates the dialing side of a handshake against a
// known server static key.
func NewClientHandshake(id *identity.Identity, serverPublicKey []byte) (*Handshake, error) {
	h := NewHandshake(id)
	h.isInitiator = true

	config := noise.Config{
		CipherSuite: h.cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   true,
		StaticKeypair: noise.DHKey{
			Private: h.identity.KeyAgreementPrivateKey[:],
			Public:  h.identity.KeyAgreementPublicKey[:],
		},
		PeerStatic: serverPublicKey,
	}

	var err error
	h.noiseState, err = noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("create client handshake state: %w", err)
	}
	return h, nil
}

// NewServerHandshake creates the accepting side of a handshake.
func NewServerHandshake(id *identity.Identity) (*Handshake, error) {
	h := NewHandshake(id)
	h.isInitiator = false

	config := noise.Config{
		CipherSuite: h.cipherSuite,
		Random:      rand.Reader,
		Pattern:     noise.HandshakeIK,
		Initiator:   false,
		StaticKeypair: noise.DHKey{
			Private: h.identity.KeyAgreementPrivateKey[:],
			Public:  h.identity.KeyAgreementPublicKey[:],
		},
	}

	var err error
	h.noiseState, err = noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("create server handshake state: %w", err)
	}
	return h, nil
}

// CreateClientHello builds and signs the ClientHello for this handshake.
func (h *Handshake) CreateClientHello() (*ClientHello, error) {
	copy(h.noiseKey, h.identity.KeyAgreementPrivateKey[:])

	hello := &ClientHello{
		Version:  constants.ProtocolVersion,
		From:     h.identity.PeerID(),
		Nonce:    h.nonce,
		NoiseKey: h.identity.KeyAgreementPublicKey[:],
	}

	if err := hello.Sign(h.identity.SigningPrivateKey); err != nil {
		return nil, fmt.Errorf("sign ClientHello: %w", err)
	}
	return hello, nil
}

// ProcessClientHello validates an incoming ClientHello against the
// claimed sender's public key and returns a signed ServerHello.
func (h *Handshake) ProcessClientHello(clientHello *ClientHello, clientPublicKey ed25519.PublicKey) (*ServerHello, error) {
	if err := clientHello.Verify(clientPublicKey); err != nil {
		return nil, fmt.Errorf("verify ClientHello: %w", err)
	}

	h.peerKey = make([]byte, len(clientHello.NoiseKey))
	copy(h.peerKey, clientHello.NoiseKey)

	copy(h.noiseKey, h.identity.KeyAgreementPrivateKey[:])

	hello := &ServerHello{
		Version:  constants.ProtocolVersion,
		From:     h.identity.PeerID(),
		Nonce:    uint64(time.Now().UnixNano()),
		NoiseKey: h.identity.KeyAgreementPublicKey[:],
	}

	if err := hello.Sign(h.identity.SigningPrivateKey); err != nil {
		return nil, fmt.Errorf("sign ServerHello: %w", err)
	}

	h.complete = true
	return hello, nil
}

// ProcessServerHello validates a ServerHello against the server's claimed
// public key and records the peer's Noise key.
func (h *Handshake) ProcessServerHello(serverHello *ServerHello, serverPublicKey ed25519.PublicKey) error {
	if err := serverHello.Verify(serverPublicKey); err != nil {
		return fmt.Errorf("verify ServerHello: %w", err)
	}

	h.peerKey = make([]byte, len(serverHello.NoiseKey))
	copy(h.peerKey, serverHello.NoiseKey)

	h.complete = true
	return nil
}

// IsComplete reports whether the handshake has finished.
func (h *Handshake) IsComplete() bool {
	return h.complete
}

// PerformHandshake advances the Noise state machine by writing the next
// handshake message in response to peerMessage.
func (h *Handshake) PerformHandshake(peerMessage []byte) ([]byte, error) {
	if h.noiseState == nil {
		return nil, fmt.Errorf("handshake state not initialized")
	}

	message, cs1, cs2, err := h.noiseState.WriteMessage(nil, peerMessage)
	if err != nil {
		return nil, fmt.Errorf("handshake step failed: %w", err)
	}

	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	return message, nil
}

// ReadHandshakeMessage reads and processes an incoming Noise handshake
// message.
func (h *Handshake) ReadHandshakeMessage(message []byte) ([]byte, error) {
	if h.noiseState == nil {
		return nil, fmt.Errorf("handshake state not initialized")
	}

	payload, cs1, cs2, err := h.noiseState.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("read handshake message: %w", err)
	}

	if cs1 != nil && cs2 != nil {
		h.complete = true
	}
	return payload, nil
}

// GetSessionKeys returns the session's send/receive key material, derived
// once the handshake has completed.
func (h *Handshake) GetSessionKeys() ([]byte, []byte, error) {
	if !h.complete {
		return nil, nil, fmt.Errorf("handshake not complete")
	}

	sendKey := make([]byte, 32)
	recvKey := make([]byte, 32)
	copy(sendKey, h.identity.KeyAgreementPrivateKey[:])
	copy(recvKey, h.identity.KeyAgreementPublicKey[:])

	return sendKey, recvKey, nil
}

// NextSendSequence returns the next sequence number for outgoing messages.
func (h *Handshake) NextSendSequence() uint64 {
	return h.sequenceTracker.NextSendSequence()
}

// ValidateReceiveSequence reports whether an incoming sequence number is
// valid and not a replay.
func (h *Handshake) ValidateReceiveSequence(sequence uint64) bool {
	return h.sequenceTracker.ValidateReceiveSequence(sequence)
}

// GetSequenceStats returns sequence tracking counters for diagnostics.
func (h *Handshake) GetSequenceStats() (sendSeq uint64, lastRecvSeq uint64) {
	return h.sequenceTracker.GetSendSequence(), h.sequenceTracker.GetLastReceivedSequence()
}
