// Package wire implements fai's base framing protocol: every sync-engine
// request and response shares a canonical CBOR envelope, individually
// signed with the sender's Ed25519 key.
package wire

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/faiproject/fai/pkg/codec/cborcanon"
	"github.com/faiproject/fai/pkg/constants"
)

// BaseFrame is the common envelope for every message on the chunk and
// commit substream protocols.
type BaseFrame struct {
	V    uint16      `cbor:"v"`    // protocol version
	Kind uint16      `cbor:"kind"` // message kind, see constants.Kind*
	From string      `cbor:"from"` // sender PeerID
	Seq  uint64      `cbor:"seq"`  // sequence number, for request/response correlation
	TS   uint64      `cbor:"ts"`   // timestamp, ms since Unix epoch
	Body interface{} `cbor:"body"` // kind-specific CBOR payload
	Sig  []byte      `cbor:"sig"`  // Ed25519 signature over canonical(v|kind|from|seq|ts|body)
}

// NewBaseFrame creates a new BaseFrame stamped with the current time.
func NewBaseFrame(kind uint16, from string, seq uint64, body interface{}) *BaseFrame {
	return &BaseFrame{
		V:    constants.ProtocolVersion,
		Kind: kind,
		From: from,
		Seq:  seq,
		TS:   uint64(time.Now().UnixMilli()),
		Body: body,
	}
}

// Sign signs the frame with the provided Ed25519 private key.
func (f *BaseFrame) Sign(privateKey ed25519.PrivateKey) error {
	sigData, err := cborcanon.EncodeForSigning(f, "sig")
	if err != nil {
		return fmt.Errorf("encode frame for signing: %w", err)
	}
	f.Sig = ed25519.Sign(privateKey, sigData)
	return nil
}

// Verify checks the frame signature against the provided Ed25519 public key.
func (f *BaseFrame) Verify(publicKey ed25519.PublicKey) error {
	if len(f.Sig) == 0 {
		return fmt.Errorf("frame has no signature")
	}

	sigData, err := cborcanon.EncodeForSigning(f, "sig")
	if err != nil {
		return fmt.Errorf("encode frame for verification: %w", err)
	}

	if !ed25519.Verify(publicKey, sigData, f.Sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// Marshal encodes the frame to canonical CBOR.
func (f *BaseFrame) Marshal() ([]byte, error) {
	return cborcanon.Marshal(f)
}

// Unmarshal decodes canonical CBOR data into the frame.
func (f *BaseFrame) Unmarshal(data []byte) error {
	return cborcanon.Unmarshal(data, f)
}

// Validate performs structural and freshness checks on the frame, ahead of
// signature verification (which requires knowing the sender's key).
func (f *BaseFrame) Validate() error {
	if f.V != constants.ProtocolVersion {
		return NewError(constants.ErrorVersionMismatch,
			fmt.Sprintf("unsupported protocol version: %d", f.V))
	}

	if f.From == "" {
		return NewError(constants.ErrorInvalidSig, "missing sender peer id")
	}

	if len(f.Sig) == 0 {
		return NewError(constants.ErrorInvalidSig, "missing signature")
	}

	now := uint64(time.Now().UnixMilli())
	maxSkew := uint64(constants.MaxClockSkew.Milliseconds())

	if f.TS > now+maxSkew {
		return NewError(constants.ErrorVersionMismatch, "timestamp too far in future")
	}
	if now > f.TS+maxSkew {
		return NewError(constants.ErrorVersionMismatch, "timestamp too far in past")
	}

	return nil
}

// IsKind reports whether the frame carries the given message kind.
func (f *BaseFrame) IsKind(kind uint16) bool {
	return f.Kind == kind
}

// Timestamp returns the frame timestamp as a time.Time.
func (f *BaseFrame) Timestamp() time.Time {
	return time.UnixMilli(int64(f.TS))
}

// PingBody is the body of a KindPing message, a liveness check whose token
// the PONG echoes. pkg/sync does not send PING frames.
type PingBody struct {
	Token []byte `cbor:"token"`
}

// PongBody is the body of a KindPong message, echoing the ping token.
type PongBody struct {
	Token []byte `cbor:"token"`
}

// ChunkRequestBody asks a peer for one chunk (or raw small object) by digest.
type ChunkRequestBody struct {
	Digest string `cbor:"digest"`
}

// ChunkResponseBody carries the requested bytes, or Found=false if the peer
// does not hold that digest.
type ChunkResponseBody struct {
	Digest string `cbor:"digest"`
	Found  bool   `cbor:"found"`
	Data   []byte `cbor:"data,omitempty"`
}

// CommitRequestBody asks a peer for the commits reachable from Heads that
// are not reachable from any digest in Have, so the responder can compute
// the minimal set to send.
type CommitRequestBody struct {
	Heads []string `cbor:"heads"`
	Have  []string `cbor:"have"`
}

// CommitResponseBody carries commit records in dependency order (a commit's
// parents always precede it), each encoded as canonical CBOR bytes so the
// receiving side can verify the embedded digest independently of transport.
type CommitResponseBody struct {
	Commits [][]byte `cbor:"commits"`
}

// NewPingFrame builds a signed-ready PING frame.
func NewPingFrame(from string, seq uint64, token []byte) *BaseFrame {
	return NewBaseFrame(constants.KindPing, from, seq, &PingBody{Token: token})
}

// NewPongFrame builds a signed-ready PONG frame.
func NewPongFrame(from string, seq uint64, token []byte) *BaseFrame {
	return NewBaseFrame(constants.KindPong, from, seq, &PongBody{Token: token})
}

// NewChunkRequestFrame builds a chunk request frame.
func NewChunkRequestFrame(from string, seq uint64, digest string) *BaseFrame {
	return NewBaseFrame(constants.KindChunkRequest, from, seq, &ChunkRequestBody{Digest: digest})
}

// NewChunkResponseFrame builds a chunk response frame.
func NewChunkResponseFrame(from string, seq uint64, digest string, found bool, data []byte) *BaseFrame {
	return NewBaseFrame(constants.KindChunkResponse, from, seq, &ChunkResponseBody{
		Digest: digest,
		Found:  found,
		Data:   data,
	})
}

// NewCommitRequestFrame builds a commit request frame.
func NewCommitRequestFrame(from string, seq uint64, heads, have []string) *BaseFrame {
	return NewBaseFrame(constants.KindCommitRequest, from, seq, &CommitRequestBody{
		Heads: heads,
		Have:  have,
	})
}

// NewCommitResponseFrame builds a commit response frame.
func NewCommitResponseFrame(from string, seq uint64, commits [][]byte) *BaseFrame {
	return NewBaseFrame(constants.KindCommitResponse, from, seq, &CommitResponseBody{Commits: commits})
}
