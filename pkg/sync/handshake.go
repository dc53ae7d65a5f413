package sync

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"time"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/identity"
	"github.com/faiproject/fai/pkg/security/noiseik"
	"github.com/faiproject/fai/pkg/transport"
	"github.com/faiproject/fai/pkg/transport/muxsession"
)

// helloBufferSize bounds a single ClientHello/ServerHello wire message.
const helloBufferSize = 4096

// PeerKeyLookup resolves the signing and key-agreement public keys a
// server needs to verify and complete a handshake with a peer that
// identifies itself by PeerID. Callers typically back this with a
// discovery table entry or a manually configured peer list, since this
// system has no directory service to resolve a PeerID from.
type PeerKeyLookup func(peerID string) (signing ed25519.PublicKey, keyAgreement []byte, err error)

// dialSecure dials addr over t, exchanges a signed ClientHello/ServerHello
// with the peer as the initiator (no Noise handshake message is sent; the
// byte stream is protected by the transport's TLS), and multiplexes the
// resulting connection with yamux. The connection carries a deadline of
// constants.RequestTimeout. The returned Handshake retains the session's
// sequence tracker, so the caller can validate the sequence numbers of
// frames received over it.
func dialSecure(ctx context.Context, t transport.Transport, addr string, id *identity.Identity, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte) (*muxsession.Session, *noiseik.Handshake, error) {
	tlsConfig := &tls.Config{
		NextProtos:         []string{constants.ALPNProtocol},
		InsecureSkipVerify: true,
	}

	conn, err := t.Dial(ctx, addr, tlsConfig)
	if err != nil {
		return nil, nil, ferr.Wrap(ferr.Network, "sync.dialSecure", addr, err)
	}
	// Every Client call dials its own connection for a single request, so a
	// deadline on the connection bounds that whole request round-trip.
	if err := conn.SetDeadline(time.Now().Add(constants.RequestTimeout)); err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Network, "sync.dialSecure", addr, err)
	}

	handshake, err := noiseik.NewClientHandshake(id, peerKeyAgreementKey)
	if err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Invalid, "sync.dialSecure", addr, err)
	}

	clientHello, err := handshake.CreateClientHello()
	if err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Invalid, "sync.dialSecure", addr, err)
	}

	helloData, err := clientHello.Marshal()
	if err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Invalid, "sync.dialSecure", addr, err)
	}
	if _, err := conn.Write(helloData); err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Network, "sync.dialSecure", addr, err)
	}

	buf := make([]byte, helloBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Network, "sync.dialSecure", addr, err)
	}

	var serverHello noiseik.ServerHello
	if err := serverHello.Unmarshal(buf[:n]); err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Invalid, "sync.dialSecure", addr, err)
	}
	if err := handshake.ProcessServerHello(&serverHello, peerSigningKey); err != nil {
		conn.Close()
		return nil, nil, ferr.Wrap(ferr.Invalid, "sync.dialSecure", addr, err)
	}

	session, err := muxsession.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return session, handshake, nil
}

// acceptSecure completes the responder side of the signed hello exchange
// over an already-accepted transport connection, then multiplexes it. The
// returned Handshake retains the session's sequence tracker, so the caller
// can validate the sequence numbers of frames received over it.
func acceptSecure(conn transport.Conn, id *identity.Identity, lookup PeerKeyLookup) (*muxsession.Session, *noiseik.Handshake, string, error) {
	buf := make([]byte, helloBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Network, "sync.acceptSecure", "", err)
	}

	var clientHello noiseik.ClientHello
	if err := clientHello.Unmarshal(buf[:n]); err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Invalid, "sync.acceptSecure", "", err)
	}

	clientSigningKey, _, err := lookup(clientHello.From)
	if err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Invalid, "sync.acceptSecure", clientHello.From, err)
	}

	handshake, err := noiseik.NewServerHandshake(id)
	if err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Invalid, "sync.acceptSecure", clientHello.From, err)
	}

	serverHello, err := handshake.ProcessClientHello(&clientHello, clientSigningKey)
	if err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Invalid, "sync.acceptSecure", clientHello.From, err)
	}

	helloData, err := serverHello.Marshal()
	if err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Invalid, "sync.acceptSecure", clientHello.From, err)
	}
	if _, err := conn.Write(helloData); err != nil {
		return nil, nil, "", ferr.Wrap(ferr.Network, "sync.acceptSecure", clientHello.From, err)
	}

	session, err := muxsession.NewServer(conn)
	if err != nil {
		return nil, nil, "", err
	}
	return session, handshake, clientHello.From, nil
}
