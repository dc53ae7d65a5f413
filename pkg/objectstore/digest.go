// Package objectstore implements fai's content-addressed blob store: fixed-
// size chunking, BLAKE3-256 digests, manifests for files larger than one
// chunk, and an on-disk sharded layout under objects/.
package objectstore

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/faiproject/fai/pkg/constants"
)

// DigestSize is the length, in bytes, of a BLAKE3-256 digest.
const DigestSize = 32

// Digest is a BLAKE3-256 content digest, rendered as lowercase hex for
// storage paths, manifests, and the wire protocol.
type Digest struct {
	sum [DigestSize]byte
}

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	return Digest{sum: blake3.Sum256(data)}
}

// Parse decodes a hex digest string produced by Digest.String.
func Parse(s string) (Digest, error) {
	if len(s) != DigestSize*2 {
		return Digest{}, fmt.Errorf("objectstore: invalid digest length %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("objectstore: invalid digest: %w", err)
	}
	var d Digest
	copy(d.sum[:], b)
	return d, nil
}

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d.sum[:])
}

// Bytes returns a copy of the raw digest bytes.
func (d Digest) Bytes() []byte {
	out := make([]byte, DigestSize)
	copy(out, d.sum[:])
	return out
}

// IsZero reports whether d is the zero value (no digest set).
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equal reports whether two digests are the same.
func (d Digest) Equal(other Digest) bool {
	return d.sum == other.sum
}

// ShardPath returns the relative path ("<prefix>/<rest>") used to place this
// digest's blob under the objects/ directory, so no single directory holds
// more than a manageable number of entries.
func (d Digest) ShardPath() (prefix, rest string) {
	hexStr := d.String()
	return hexStr[:constants.ShardPrefixLen], hexStr[constants.ShardPrefixLen:]
}
