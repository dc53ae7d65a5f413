package objectstore

import (
	"encoding/json"
	"fmt"

	"github.com/faiproject/fai/pkg/ferr"
)

// On-disk blobs are tagged with a leading byte so a reader never has to
// sniff the payload (a raw blob beginning with '{' must never be mistaken
// for manifest JSON).
const (
	kindRaw      byte = 0x00
	kindManifest byte = 0x01
)

// Manifest records how a blob larger than one chunk was split. The JSON
// encoding (everything after the kind-tag byte) is the wire/on-disk format;
// field names are part of that contract and must not change.
type Manifest struct {
	TotalSize uint64   `json:"total_size"`
	Chunks    []string `json:"chunks"`
	Filename  *string  `json:"filename,omitempty"`
}

// BuildManifest constructs a manifest from a chunk sequence already in
// offset order.
func BuildManifest(chunks []Chunk, filename string) *Manifest {
	digests := make([]string, len(chunks))
	var total uint64
	for i, c := range chunks {
		digests[i] = c.Digest.String()
		total += uint64(len(c.Data))
	}

	m := &Manifest{TotalSize: total, Chunks: digests}
	if filename != "" {
		m.Filename = &filename
	}
	return m
}

// encode renders the manifest as a tagged blob: one kind byte followed by
// its JSON body.
func (m *Manifest) encode() ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "objectstore.Manifest.encode", "", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, kindManifest)
	out = append(out, body...)
	return out, nil
}

// decodeManifest parses a tagged manifest blob back into a Manifest. Callers
// must have already checked the kind byte.
func decodeManifest(body []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, ferr.Wrap(ferr.Invalid, "objectstore.decodeManifest", "", err)
	}
	if err := validateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateManifest(m *Manifest) error {
	if len(m.Chunks) == 0 {
		return ferr.New(ferr.Invalid, "objectstore.validateManifest", "chunks is empty")
	}
	for i, c := range m.Chunks {
		if _, err := Parse(c); err != nil {
			return ferr.Wrap(ferr.Invalid, "objectstore.validateManifest", fmt.Sprintf("chunk[%d]", i), err)
		}
	}
	return nil
}
