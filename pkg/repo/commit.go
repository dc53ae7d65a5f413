package repo

import (
	"sort"

	"github.com/faiproject/fai/pkg/codec/cborcanon"
	"github.com/faiproject/fai/pkg/metadata"
	"github.com/faiproject/fai/pkg/objectstore"
)

// FileEntry is one (path, digest, size) triple as recorded in a commit or
// the staging area.
type FileEntry struct {
	Path   string `cbor:"path"`
	Digest string `cbor:"digest"`
	Size   uint64 `cbor:"size"`
}

// digestPayload is the exact structure hashed to produce a commit's digest.
// It deliberately excludes the commit's own digest and any wall-clock
// value sampled at digest-computation time: only content-derived fields
// plus the caller-supplied timestamp go in, so the same (message, parents,
// files, timestamp) always produces the same digest, on any peer (P4).
type digestPayload struct {
	Message   string      `cbor:"message"`
	Timestamp int64       `cbor:"timestamp_ms"`
	Parents   []string    `cbor:"parents"`
	Files     []FileEntry `cbor:"files"`
}

// computeCommitDigest derives a commit's content-addressed digest.
// Parents are hashed in the order given (caller order is significant for a
// merge's parent list); files are hashed sorted by path so that staging the
// same set in a different order yields the same commit.
func computeCommitDigest(message string, timestampMs int64, parents []string, files []FileEntry) (objectstore.Digest, error) {
	sortedFiles := make([]FileEntry, len(files))
	copy(sortedFiles, files)
	sort.Slice(sortedFiles, func(i, j int) bool { return sortedFiles[i].Path < sortedFiles[j].Path })

	payload := digestPayload{
		Message:   message,
		Timestamp: timestampMs,
		Parents:   parents,
		Files:     sortedFiles,
	}

	encoded, err := cborcanon.Marshal(payload)
	if err != nil {
		return objectstore.Digest{}, err
	}
	return objectstore.Sum(encoded), nil
}

func fileEntriesFromStaged(staged []metadata.StagedFile) []FileEntry {
	out := make([]FileEntry, len(staged))
	for i, s := range staged {
		out[i] = FileEntry{Path: s.Path, Digest: s.ObjectDigest, Size: s.Size}
	}
	return out
}

func fileEntriesFromRecord(files []metadata.CommitFile) []FileEntry {
	out := make([]FileEntry, len(files))
	for i, f := range files {
		out[i] = FileEntry{Path: f.Path, Digest: f.ObjectDigest, Size: f.Size}
	}
	return out
}
