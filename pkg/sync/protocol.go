// Package sync implements the peer-to-peer exchange of chunks and commits
// over the TLS transport, a signed hello exchange, and yamux: each substream carries a
// single request/response pair framed as a length-prefixed wire.BaseFrame.
package sync

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/wire"
)

// maxFrameSize bounds a single frame so a misbehaving peer cannot force an
// unbounded allocation; large chunk payloads still fit comfortably under it
// since chunks are capped at constants.ChunkSize.
const maxFrameSize = constants.ChunkSize + 4096

// writeFrame sends frame as a 4-byte big-endian length prefix followed by
// its canonical CBOR encoding.
func writeFrame(conn net.Conn, frame *wire.BaseFrame) error {
	data, err := frame.Marshal()
	if err != nil {
		return ferr.Wrap(ferr.Invalid, "sync.writeFrame", "", err)
	}
	if len(data) > maxFrameSize {
		return ferr.New(ferr.Invalid, "sync.writeFrame", "frame exceeds maximum size")
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := conn.Write(header[:]); err != nil {
		return ferr.Wrap(ferr.Network, "sync.writeFrame", "", err)
	}
	if _, err := conn.Write(data); err != nil {
		return ferr.Wrap(ferr.Network, "sync.writeFrame", "", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from conn.
func readFrame(conn net.Conn) (*wire.BaseFrame, error) {
	var header [4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return nil, ferr.Wrap(ferr.Network, "sync.readFrame", "", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return nil, ferr.New(ferr.Invalid, "sync.readFrame", "invalid frame size")
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(conn, data); err != nil {
		return nil, ferr.Wrap(ferr.Network, "sync.readFrame", "", err)
	}

	frame := &wire.BaseFrame{}
	if err := frame.Unmarshal(data); err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "sync.readFrame", "", err)
	}
	return frame, nil
}
