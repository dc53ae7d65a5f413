package sync

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/faiproject/fai/pkg/codec/cborcanon"
	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/identity"
	"github.com/faiproject/fai/pkg/metadata"
	"github.com/faiproject/fai/pkg/objectstore"
	"github.com/faiproject/fai/pkg/repo"
	"github.com/faiproject/fai/pkg/security/noiseik"
	"github.com/faiproject/fai/pkg/transport"
	"github.com/faiproject/fai/pkg/wire"
)

// Server accepts connections and serves chunk and commit requests out of a
// local repository, responding to whichever substream protocol a peer
// opens.
type Server struct {
	identity *identity.Identity
	repo     *repo.Repository
	lookup   PeerKeyLookup
}

// NewServer creates a Server that authenticates incoming connections as id
// and serves data out of r. lookup resolves a claimed peer's public keys
// for handshake verification.
func NewServer(id *identity.Identity, r *repo.Repository, lookup PeerKeyLookup) *Server {
	return &Server{identity: id, repo: r, lookup: lookup}
}

// Serve listens on addr using t and handles connections until ctx is
// canceled or Listen fails.
func (s *Server) Serve(ctx context.Context, t transport.Transport, addr string) error {
	tlsConfig := &tls.Config{
		NextProtos: []string{constants.ALPNProtocol},
		// A self-signed, ephemeral certificate is sufficient here: peer
		// authenticity comes from the Noise IK handshake layered on top,
		// not from the TLS certificate chain.
		InsecureSkipVerify: true,
	}

	listener, err := t.Listen(ctx, addr, tlsConfig)
	if err != nil {
		return ferr.Wrap(ferr.Network, "sync.Serve", addr, err)
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return ferr.Wrap(ferr.Network, "sync.Serve", addr, err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn transport.Conn) {
	defer conn.Close()

	session, handshake, peerID, err := acceptSecure(conn, s.identity, s.lookup)
	if err != nil {
		return
	}
	defer session.Close()

	peerSigningKey, _, err := s.lookup(peerID)
	if err != nil {
		return
	}

	for {
		stream, err := session.AcceptStream()
		if err != nil {
			return
		}
		go s.handleStream(ctx, peerID, peerSigningKey, handshake, stream)
	}
}

// handleStream validates a request frame's structure, signature, and
// sequence number against the session's replay window before dispatching
// it — a frame that fails any of these checks is dropped silently, the
// same way a malformed or unparseable frame already was.
func (s *Server) handleStream(ctx context.Context, peerID string, peerSigningKey ed25519.PublicKey, handshake *noiseik.Handshake, stream net.Conn) {
	defer stream.Close()

	req, err := readFrame(stream)
	if err != nil {
		return
	}

	if err := req.Validate(); err != nil {
		return
	}
	if req.From != peerID {
		return
	}
	if err := req.Verify(peerSigningKey); err != nil {
		return
	}
	if !handshake.ValidateReceiveSequence(req.Seq) {
		return
	}

	switch req.Kind {
	case constants.KindChunkRequest:
		s.handleChunkRequest(stream, req)
	case constants.KindCommitRequest:
		s.handleCommitRequest(stream, req)
	case constants.KindCommitResponse:
		s.handleCommitPush(stream, req)
	case constants.KindChunkResponse:
		s.handleChunkPush(stream, req)
	default:
		resp := wire.ErrorFrame(s.identity.PeerID(), req.Seq,
			wire.NewError(constants.ErrorVersionMismatch, fmt.Sprintf("unsupported message kind %d", req.Kind)))
		resp.Sign(s.identity.SigningPrivateKey)
		writeFrame(stream, resp)
	}
}

func (s *Server) handleChunkRequest(stream net.Conn, req *wire.BaseFrame) {
	body, ok := req.Body.(*wire.ChunkRequestBody)
	if !ok {
		return
	}

	digest, err := objectstore.Parse(body.Digest)
	if err != nil {
		s.writeError(stream, req.Seq, constants.ErrorNotFound, "invalid digest")
		return
	}

	if !s.repo.Store().Exists(digest) {
		resp := wire.NewChunkResponseFrame(s.identity.PeerID(), req.Seq, body.Digest, false, nil)
		resp.Sign(s.identity.SigningPrivateKey)
		writeFrame(stream, resp)
		return
	}

	data, err := s.repo.Store().TaggedBytes(digest)
	if err != nil {
		s.writeError(stream, req.Seq, constants.ErrorNotFound, "retrieve failed")
		return
	}

	resp := wire.NewChunkResponseFrame(s.identity.PeerID(), req.Seq, body.Digest, true, data)
	resp.Sign(s.identity.SigningPrivateKey)
	writeFrame(stream, resp)
}

func (s *Server) handleCommitRequest(stream net.Conn, req *wire.BaseFrame) {
	body, ok := req.Body.(*wire.CommitRequestBody)
	if !ok {
		return
	}

	have := make(map[string]bool, len(body.Have))
	for _, d := range body.Have {
		have[d] = true
	}

	var ordered [][]byte
	visited := make(map[string]bool)

	var visit func(digest string) error
	visit = func(digest string) error {
		if digest == "" || have[digest] || visited[digest] {
			return nil
		}
		visited[digest] = true

		rec, err := s.repo.Index().GetCommit(digest)
		if err != nil {
			return err
		}
		for _, parent := range rec.Parents {
			if err := visit(parent); err != nil {
				return err
			}
		}

		encoded, err := encodeCommitRecord(rec)
		if err != nil {
			return err
		}
		ordered = append(ordered, encoded)
		return nil
	}

	heads := body.Heads
	if len(heads) == 0 {
		// No heads named means "everything this node knows", matching
		// spec.md §4.4's list_commits(None) responder behavior.
		all, err := s.repo.Index().ListCommits()
		if err != nil {
			s.writeError(stream, req.Seq, constants.ErrorNotFound, "list commits failed")
			return
		}
		heads = all
	}

	for _, head := range heads {
		if err := visit(head); err != nil {
			s.writeError(stream, req.Seq, constants.ErrorNotFound, "unknown commit in heads")
			return
		}
	}

	resp := wire.NewCommitResponseFrame(s.identity.PeerID(), req.Seq, ordered)
	resp.Sign(s.identity.SigningPrivateKey)
	writeFrame(stream, resp)
}

// handleChunkPush stores an object a peer sent unsolicited (see
// Client.sendObject), verifying it against the claimed digest exactly as
// PutTagged would for any other write.
func (s *Server) handleChunkPush(stream net.Conn, req *wire.BaseFrame) {
	body, ok := req.Body.(*wire.ChunkResponseBody)
	if !ok || !body.Found {
		return
	}

	digest, err := objectstore.Parse(body.Digest)
	if err != nil {
		s.writeError(stream, req.Seq, constants.ErrorInvalidSig, "invalid digest")
		return
	}

	if !s.repo.Store().Exists(digest) {
		if err := s.repo.Store().PutTagged(digest, body.Data); err != nil {
			s.writeError(stream, req.Seq, constants.ErrorInvalidSig, "store object failed")
			return
		}
	}

	ack := wire.NewChunkResponseFrame(s.identity.PeerID(), req.Seq, body.Digest, true, nil)
	ack.Sign(s.identity.SigningPrivateKey)
	writeFrame(stream, ack)
}

func (s *Server) handleCommitPush(stream net.Conn, req *wire.BaseFrame) {
	body, ok := req.Body.(*wire.CommitResponseBody)
	if !ok {
		return
	}

	for _, encoded := range body.Commits {
		rec, err := decodeCommitRecord(encoded)
		if err != nil {
			s.writeError(stream, req.Seq, constants.ErrorInvalidSig, "malformed commit")
			return
		}
		if err := s.repo.Index().PutCommit(rec); err != nil {
			s.writeError(stream, req.Seq, constants.ErrorConflict, "store commit failed")
			return
		}
	}

	ack := wire.NewBaseFrame(constants.KindCommitResponse, s.identity.PeerID(), req.Seq, &wire.CommitResponseBody{})
	ack.Sign(s.identity.SigningPrivateKey)
	writeFrame(stream, ack)
}

func (s *Server) writeError(stream net.Conn, seq uint64, code uint16, reason string) {
	resp := wire.ErrorFrame(s.identity.PeerID(), seq, wire.NewError(code, reason))
	resp.Sign(s.identity.SigningPrivateKey)
	writeFrame(stream, resp)
}

// encodeCommitRecord and decodeCommitRecord round-trip a metadata.CommitRecord
// through canonical CBOR, matching the format wire.CommitResponseBody embeds
// for each entry.
func encodeCommitRecord(rec *metadata.CommitRecord) ([]byte, error) {
	return cborcanon.Marshal(rec)
}

func decodeCommitRecord(data []byte) (*metadata.CommitRecord, error) {
	rec := &metadata.CommitRecord{}
	if err := cborcanon.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
