// Package constants defines cross-cutting configuration values for fai:
// chunk sizing, timeouts, discovery cadence, and wire protocol identifiers.
package constants

import "time"

// Object store configuration.
const (
	// ChunkSize is the fixed size of a content chunk, in bytes. A blob larger
	// than this is split into chunks of exactly this size (the last chunk may
	// be shorter) and addressed through a manifest. This is a repository-wide
	// policy and must not change after the first commit.
	ChunkSize = 1024 * 1024 // 1 MiB

	// ConcurrentChunkFetch is a nominal bound on how many chunks of one
	// manifest are in flight to a single peer at once. pkg/sync does not
	// reference it and fetches a manifest's chunks one at a time.
	ConcurrentChunkFetch = 4

	// ShardPrefixLen is the number of leading hex characters of a digest used
	// as the first-level shard directory under objects/.
	ShardPrefixLen = 2
)

// Sync engine configuration.
const (
	// DiscoveryInterval is how often the discovery loop re-browses for peers.
	DiscoveryInterval = 5 * time.Second

	// DiscoveryTTL is how long a discovered peer is kept before it is
	// considered stale and dropped from the peer table.
	DiscoveryTTL = 60 * time.Second

	// RequestTimeout bounds a single outbound chunk or commit request.
	RequestTimeout = 10 * time.Second

	// DialTimeout is a nominal bound on establishing a transport connection
	// to a peer. The transports do not reference it: the TCP dialer uses its
	// own 30-second timeout, and QUIC dials are bounded by the caller's
	// context.
	DialTimeout = 10 * time.Second

	// MaxClockSkew bounds how far a signed frame's timestamp may lie from the
	// local clock, in the past or the future (see wire.BaseFrame.Validate).
	MaxClockSkew = 120 * time.Second
)

// Protocol configuration, fixed for wire compatibility.
const (
	ProtocolVersion = 1

	ChunkProtocolID  = "/fai/chunk/1.0.0"
	CommitProtocolID = "/fai/commit/1.0.0"

	// DefaultTCPPort and DefaultQUICPort are used when no explicit port is
	// configured; 0 asks the OS for an ephemeral port.
	DefaultTCPPort  = 27470
	DefaultQUICPort = 27471

	// MDNSServiceName is the LAN multicast service name peers advertise
	// themselves under for discovery.
	MDNSServiceName = "_fai._tcp"
	MDNSDomain      = "local."

	// ALPNProtocol is negotiated over the TLS handshake that backs the TCP
	// transport.
	ALPNProtocol = "fai/1"

	// HashAlgorithm names the digest function fixed for this repository.
	HashAlgorithm = "blake3-256"

	TextEncoding = "utf-8"
)

// Error codes carried in protocol-level ERROR frames.
const (
	ErrorInvalidSig      = 1
	ErrorNotFound        = 2
	ErrorNoProvider      = 3
	ErrorRateLimit       = 4
	ErrorVersionMismatch = 5
	ErrorConflict        = 6
)

// Message kinds carried in a wire.BaseFrame.
const (
	KindPing           = 1
	KindPong           = 2
	KindChunkRequest   = 40
	KindChunkResponse  = 41
	KindCommitRequest  = 50
	KindCommitResponse = 51
)
