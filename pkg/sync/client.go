package sync

import (
	"context"
	"crypto/ed25519"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/identity"
	"github.com/faiproject/fai/pkg/security/noiseik"
	"github.com/faiproject/fai/pkg/transport"
	"github.com/faiproject/fai/pkg/transport/muxsession"
	"github.com/faiproject/fai/pkg/wire"
)

// Client dials peers and issues chunk/commit requests over the sync
// protocol. A Client owns no transport-level connection state beyond the
// identity it authenticates with; every call dials fresh.
type Client struct {
	identity  *identity.Identity
	transport transport.Transport
	seq       uint64
}

// NewClient creates a Client that authenticates outbound connections as id
// and dials peers over t (typically tcp.New() or quic.New()).
func NewClient(id *identity.Identity, t transport.Transport) *Client {
	return &Client{identity: id, transport: t}
}

func (c *Client) nextSeq() uint64 {
	c.seq++
	return c.seq
}

// connect dials addr, completes the signed hello exchange against the
// peer's known keys, and opens one multiplexed session.
func (c *Client) connect(ctx context.Context, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte) (*muxsession.Session, *noiseik.Handshake, error) {
	return dialSecure(ctx, c.transport, addr, c.identity, peerSigningKey, peerKeyAgreementKey)
}

// verifyResponse checks a response frame's structure, signature, and
// sequence number the same way Server.handleStream checks a request,
// so a tampered or replayed reply is rejected instead of trusted blindly.
func verifyResponse(resp *wire.BaseFrame, peerSigningKey ed25519.PublicKey, handshake *noiseik.Handshake, op string) error {
	if err := resp.Validate(); err != nil {
		return ferr.Wrap(ferr.Invalid, op, "", err)
	}
	if err := resp.Verify(peerSigningKey); err != nil {
		return ferr.Wrap(ferr.Invalid, op, "", err)
	}
	if !handshake.ValidateReceiveSequence(resp.Seq) {
		return ferr.New(ferr.Invalid, op, "replayed or out-of-window sequence number")
	}
	return nil
}

// RequestChunk fetches one object's tagged bytes (chunk, small raw blob, or
// manifest) by digest from a peer. It returns (nil, nil) if the peer does
// not have the object — a miss is not an error. The caller is responsible
// for verifying and storing the result, typically via
// objectstore.Store.PutTagged.
func (c *Client) RequestChunk(ctx context.Context, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, digest string) ([]byte, error) {
	session, handshake, err := c.connect(ctx, addr, peerSigningKey, peerKeyAgreementKey)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	stream, err := session.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	req := wire.NewChunkRequestFrame(c.identity.PeerID(), c.nextSeq(), digest)
	if err := req.Sign(c.identity.SigningPrivateKey); err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "sync.RequestChunk", digest, err)
	}
	if err := writeFrame(stream, req); err != nil {
		return nil, err
	}

	resp, err := readFrame(stream)
	if err != nil {
		return nil, err
	}
	if err := verifyResponse(resp, peerSigningKey, handshake, "sync.RequestChunk"); err != nil {
		return nil, err
	}
	if wire.IsErrorFrame(resp) {
		wireErr, _ := wire.ExtractError(resp)
		return nil, ferr.Wrap(ferr.Network, "sync.RequestChunk", digest, wireErr)
	}

	body, ok := resp.Body.(*wire.ChunkResponseBody)
	if !ok {
		return nil, ferr.New(ferr.Invalid, "sync.RequestChunk", "unexpected response body")
	}
	if !body.Found {
		return nil, nil
	}
	return body.Data, nil
}

// RequestCommits asks a peer for every commit reachable from heads that is
// not reachable from any digest already in have, returned in dependency
// order (parents before children).
func (c *Client) RequestCommits(ctx context.Context, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, heads, have []string) ([][]byte, error) {
	session, handshake, err := c.connect(ctx, addr, peerSigningKey, peerKeyAgreementKey)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	stream, err := session.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	req := wire.NewCommitRequestFrame(c.identity.PeerID(), c.nextSeq(), heads, have)
	if err := req.Sign(c.identity.SigningPrivateKey); err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "sync.RequestCommits", "", err)
	}
	if err := writeFrame(stream, req); err != nil {
		return nil, err
	}

	resp, err := readFrame(stream)
	if err != nil {
		return nil, err
	}
	if err := verifyResponse(resp, peerSigningKey, handshake, "sync.RequestCommits"); err != nil {
		return nil, err
	}
	if wire.IsErrorFrame(resp) {
		wireErr, _ := wire.ExtractError(resp)
		return nil, ferr.Wrap(ferr.Network, "sync.RequestCommits", "", wireErr)
	}

	body, ok := resp.Body.(*wire.CommitResponseBody)
	if !ok {
		return nil, ferr.New(ferr.Invalid, "sync.RequestCommits", "unexpected response body")
	}
	return body.Commits, nil
}

// sendObject pushes one object's tagged bytes to a peer unsolicited, reusing
// the ChunkResponseBody shape the same way SendCommits reuses
// CommitResponseBody: structurally it is "here is this object", whether sent
// in reply to a request or pushed ahead of one.
func (c *Client) sendObject(ctx context.Context, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, digest string, tagged []byte) error {
	session, handshake, err := c.connect(ctx, addr, peerSigningKey, peerKeyAgreementKey)
	if err != nil {
		return err
	}
	defer session.Close()

	stream, err := session.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	req := wire.NewChunkResponseFrame(c.identity.PeerID(), c.nextSeq(), digest, true, tagged)
	if err := req.Sign(c.identity.SigningPrivateKey); err != nil {
		return ferr.Wrap(ferr.Invalid, "sync.sendObject", digest, err)
	}
	if err := writeFrame(stream, req); err != nil {
		return err
	}

	resp, err := readFrame(stream)
	if err != nil {
		return err
	}
	if err := verifyResponse(resp, peerSigningKey, handshake, "sync.sendObject"); err != nil {
		return err
	}
	if wire.IsErrorFrame(resp) {
		wireErr, _ := wire.ExtractError(resp)
		return ferr.Wrap(ferr.Network, "sync.sendObject", digest, wireErr)
	}
	return nil
}

// SendCommits pushes commit records to a peer, in dependency order. The
// peer is expected to already hold every object those commits reference;
// callers push objects first with sendObject, which the peer's Server
// stores on receipt (see Server.handleChunkPush).
func (c *Client) SendCommits(ctx context.Context, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, commits [][]byte) error {
	session, handshake, err := c.connect(ctx, addr, peerSigningKey, peerKeyAgreementKey)
	if err != nil {
		return err
	}
	defer session.Close()

	stream, err := session.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	// A push reuses the CommitResponseBody shape: it is structurally the
	// same "here are commits in dependency order" payload as a pull
	// response, just sent unsolicited instead of in reply to a request.
	req := wire.NewCommitResponseFrame(c.identity.PeerID(), c.nextSeq(), commits)
	if err := req.Sign(c.identity.SigningPrivateKey); err != nil {
		return ferr.Wrap(ferr.Invalid, "sync.SendCommits", "", err)
	}
	if err := writeFrame(stream, req); err != nil {
		return err
	}

	resp, err := readFrame(stream)
	if err != nil {
		return err
	}
	if err := verifyResponse(resp, peerSigningKey, handshake, "sync.SendCommits"); err != nil {
		return err
	}
	if wire.IsErrorFrame(resp) {
		wireErr, _ := wire.ExtractError(resp)
		return ferr.Wrap(ferr.Network, "sync.SendCommits", "", wireErr)
	}
	return nil
}
