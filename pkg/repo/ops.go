package repo

import (
	"strings"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/metadata"
)

// Commit records the currently staged files as a new commit, parented on
// the current HEAD (if any), then advances HEAD to it and clears staging.
// It fails with ferr.Empty if nothing is staged, or ferr.Invalid if message
// is blank or timestampMs is negative.
func (r *Repository) Commit(message string, timestampMs int64, author string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ferr.New(ferr.Invalid, "repo.Commit", "blank message")
	}
	if timestampMs < 0 {
		return "", ferr.New(ferr.Invalid, "repo.Commit", "negative timestamp")
	}

	staged, err := r.index.ListStaged()
	if err != nil {
		return "", err
	}
	if len(staged) == 0 {
		return "", ferr.New(ferr.Empty, "repo.Commit", r.root)
	}

	parentDigest, _, err := r.Head()
	if err != nil {
		return "", err
	}

	var parents []string
	if parentDigest != "" {
		parents = []string{parentDigest}
	}

	files := fileEntriesFromStaged(staged)
	digest, err := computeCommitDigest(message, timestampMs, parents, files)
	if err != nil {
		return "", err
	}
	digestStr := digest.String()

	commitFiles := make([]metadata.CommitFile, len(files))
	for i, f := range files {
		commitFiles[i] = metadata.CommitFile{Path: f.Path, ObjectDigest: f.Digest, Size: f.Size}
	}

	rec := &metadata.CommitRecord{
		Digest:    digestStr,
		Message:   message,
		Timestamp: timestampMs,
		Author:    author,
		Parents:   parents,
		Files:     commitFiles,
	}
	if err := r.index.PutCommit(rec); err != nil {
		return "", err
	}

	if err := r.writeHead(digestStr); err != nil {
		return "", err
	}
	if err := r.index.ClearStaged(); err != nil {
		return "", err
	}

	return digestStr, nil
}

// DiffEntry describes how one path's content changed between two commits.
type DiffEntry struct {
	Path       string
	Status     DiffStatus
	FromDigest string
	ToDigest   string
	FromSize   uint64
	ToSize     uint64
}

// DiffStatus classifies a single path's change between two commits.
type DiffStatus int

const (
	DiffUnchanged DiffStatus = iota
	DiffAdded
	DiffRemoved
	DiffModified
)

// Diff compares the file lists of two commits. Either side may be a full
// digest, an unambiguous digest prefix (resolved against every commit in
// the index, failing with ferr.Conflict if more than one matches), or ""
// to mean "the empty tree", so a diff against the repository's very first
// commit can be expressed.
func (r *Repository) Diff(fromDigest, toDigest string) ([]DiffEntry, error) {
	fromFiles, err := r.commitFileMap(fromDigest)
	if err != nil {
		return nil, err
	}
	toFiles, err := r.commitFileMap(toDigest)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{}, len(fromFiles)+len(toFiles))
	for p := range fromFiles {
		paths[p] = struct{}{}
	}
	for p := range toFiles {
		paths[p] = struct{}{}
	}

	var out []DiffEntry
	for p := range paths {
		from, hasFrom := fromFiles[p]
		to, hasTo := toFiles[p]

		switch {
		case hasFrom && !hasTo:
			out = append(out, DiffEntry{Path: p, Status: DiffRemoved, FromDigest: from.ObjectDigest, FromSize: from.Size})
		case !hasFrom && hasTo:
			out = append(out, DiffEntry{Path: p, Status: DiffAdded, ToDigest: to.ObjectDigest, ToSize: to.Size})
		case from.ObjectDigest != to.ObjectDigest:
			out = append(out, DiffEntry{
				Path: p, Status: DiffModified,
				FromDigest: from.ObjectDigest, ToDigest: to.ObjectDigest,
				FromSize: from.Size, ToSize: to.Size,
			})
		default:
			out = append(out, DiffEntry{Path: p, Status: DiffUnchanged, FromDigest: from.ObjectDigest, ToDigest: to.ObjectDigest, FromSize: from.Size, ToSize: to.Size})
		}
	}

	return out, nil
}

func (r *Repository) commitFileMap(digest string) (map[string]metadata.CommitFile, error) {
	if digest == "" {
		return map[string]metadata.CommitFile{}, nil
	}
	full, err := r.index.ResolveCommit(digest)
	if err != nil {
		return nil, err
	}
	files, err := r.index.CommitFiles(full)
	if err != nil {
		return nil, err
	}
	m := make(map[string]metadata.CommitFile, len(files))
	for _, f := range files {
		m[f.Path] = f
	}
	return m, nil
}
