// Package muxsession multiplexes one secured transport connection into
// independent byte streams, one per outstanding chunk or commit request,
// using yamux.
package muxsession

import (
	"context"
	"io"
	"net"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/libp2p/go-yamux/v5"
)

// Session wraps a yamux session over an already-secured connection. Each
// Open/Accept call yields an independent stream; per-stream ordering is
// preserved, but streams are otherwise unordered with respect to one
// another, matching the sync protocol's two independent substream kinds.
type Session struct {
	ym *yamux.Session
}

// NewClient wraps conn as the dialing side of a multiplexed session.
func NewClient(conn io.ReadWriteCloser) (*Session, error) {
	ym, err := yamux.Client(conn, yamux.DefaultConfig(), nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "muxsession.NewClient", "", err)
	}
	return &Session{ym: ym}, nil
}

// NewServer wraps conn as the accepting side of a multiplexed session.
func NewServer(conn io.ReadWriteCloser) (*Session, error) {
	ym, err := yamux.Server(conn, yamux.DefaultConfig(), nil)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "muxsession.NewServer", "", err)
	}
	return &Session{ym: ym}, nil
}

// OpenStream opens a new outgoing substream.
func (s *Session) OpenStream(ctx context.Context) (net.Conn, error) {
	stream, err := s.ym.Open(ctx)
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "muxsession.OpenStream", "", err)
	}
	return stream, nil
}

// AcceptStream blocks until the peer opens a new substream.
func (s *Session) AcceptStream() (net.Conn, error) {
	stream, err := s.ym.Accept()
	if err != nil {
		return nil, ferr.Wrap(ferr.Network, "muxsession.AcceptStream", "", err)
	}
	return stream, nil
}

// NumStreams reports the number of currently open substreams.
func (s *Session) NumStreams() int {
	return s.ym.NumStreams()
}

// Close tears down the session and every open substream.
func (s *Session) Close() error {
	if err := s.ym.Close(); err != nil {
		return ferr.Wrap(ferr.Network, "muxsession.Close", "", err)
	}
	return nil
}
