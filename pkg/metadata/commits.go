package metadata

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/faiproject/fai/pkg/ferr"
)

// CommitFile is one file entry recorded against a commit.
type CommitFile struct {
	Path         string
	ObjectDigest string
	Size         uint64
}

// CommitRecord is everything stored in the metadata index for a single
// commit. Digest is the content-addressed commit digest computed by
// pkg/repo; the index itself never computes it.
type CommitRecord struct {
	Digest    string
	Message   string
	Timestamp int64
	Author    string
	Parents   []string
	Files     []CommitFile
}

// PutCommit inserts a commit and its parent/file rows in one transaction.
// Calling it twice with the same digest is a no-op: commits are immutable
// once their digest is known, so a repeat write only happens on retry or
// when two peers both already have the object. PutCommit is the one path
// every commit passes through, local or synced from a peer, so it is where
// the message-non-blank and timestamp-non-negative invariants are enforced,
// not just in the CLI or repo.Commit above it.
func (idx *Index) PutCommit(rec *CommitRecord) error {
	if rec.Digest == "" {
		return ferr.New(ferr.Invalid, "metadata.PutCommit", "empty digest")
	}
	if strings.TrimSpace(rec.Message) == "" {
		return ferr.New(ferr.Invalid, "metadata.PutCommit", rec.Digest+": blank message")
	}
	if rec.Timestamp < 0 {
		return ferr.New(ferr.Invalid, "metadata.PutCommit", rec.Digest+": negative timestamp")
	}

	tx, err := idx.db.Begin()
	if err != nil {
		return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM commits WHERE digest = ?`, rec.Digest).Scan(&exists); err == nil {
		return nil // already present; idempotent
	} else if !errors.Is(err, sql.ErrNoRows) {
		return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO commits (digest, message, timestamp, author) VALUES (?, ?, ?, ?)`,
		rec.Digest, rec.Message, rec.Timestamp, rec.Author,
	); err != nil {
		return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
	}

	for i, parent := range rec.Parents {
		if _, err := tx.Exec(
			`INSERT INTO commit_parents (commit_digest, parent_digest, ordinal) VALUES (?, ?, ?)`,
			rec.Digest, parent, i,
		); err != nil {
			return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
		}
	}

	for _, f := range rec.Files {
		if _, err := tx.Exec(
			`INSERT INTO commit_files (commit_digest, path, object_digest, size) VALUES (?, ?, ?, ?)`,
			rec.Digest, f.Path, f.ObjectDigest, f.Size,
		); err != nil {
			return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ferr.Wrap(ferr.IO, "metadata.PutCommit", rec.Digest, err)
	}
	return nil
}

// HasCommit reports whether digest is already recorded.
func (idx *Index) HasCommit(digest string) (bool, error) {
	var exists int
	err := idx.db.QueryRow(`SELECT 1 FROM commits WHERE digest = ?`, digest).Scan(&exists)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, ferr.Wrap(ferr.IO, "metadata.HasCommit", digest, err)
}

// GetCommit loads a commit record, including its parents and files.
func (idx *Index) GetCommit(digest string) (*CommitRecord, error) {
	rec := &CommitRecord{Digest: digest}

	err := idx.db.QueryRow(
		`SELECT message, timestamp, author FROM commits WHERE digest = ?`, digest,
	).Scan(&rec.Message, &rec.Timestamp, &rec.Author)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ferr.New(ferr.NotFound, "metadata.GetCommit", digest)
	}
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.GetCommit", digest, err)
	}

	prows, err := idx.db.Query(
		`SELECT parent_digest FROM commit_parents WHERE commit_digest = ? ORDER BY ordinal`, digest,
	)
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.GetCommit", digest, err)
	}
	defer prows.Close()
	for prows.Next() {
		var p string
		if err := prows.Scan(&p); err != nil {
			return nil, ferr.Wrap(ferr.IO, "metadata.GetCommit", digest, err)
		}
		rec.Parents = append(rec.Parents, p)
	}
	if err := prows.Err(); err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.GetCommit", digest, err)
	}

	files, err := idx.CommitFiles(digest)
	if err != nil {
		return nil, err
	}
	rec.Files = files

	return rec, nil
}

// CommitFiles returns the file list recorded for a commit, ordered by path.
func (idx *Index) CommitFiles(digest string) ([]CommitFile, error) {
	rows, err := idx.db.Query(
		`SELECT path, object_digest, size FROM commit_files WHERE commit_digest = ? ORDER BY path`, digest,
	)
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.CommitFiles", digest, err)
	}
	defer rows.Close()

	var out []CommitFile
	for rows.Next() {
		var f CommitFile
		if err := rows.Scan(&f.Path, &f.ObjectDigest, &f.Size); err != nil {
			return nil, ferr.Wrap(ferr.IO, "metadata.CommitFiles", digest, err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.CommitFiles", digest, err)
	}
	return out, nil
}

// ResolveCommit expands a digest or digest prefix (of any length; no
// minimum is enforced) to the one full commit digest it identifies. It fails with
// ferr.NotFound if nothing matches and ferr.Conflict if more than one
// commit shares the prefix.
func (idx *Index) ResolveCommit(prefix string) (string, error) {
	rows, err := idx.db.Query(`SELECT digest FROM commits WHERE digest LIKE ? || '%'`, prefix)
	if err != nil {
		return "", ferr.Wrap(ferr.IO, "metadata.ResolveCommit", prefix, err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return "", ferr.Wrap(ferr.IO, "metadata.ResolveCommit", prefix, err)
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return "", ferr.Wrap(ferr.IO, "metadata.ResolveCommit", prefix, err)
	}

	switch len(matches) {
	case 0:
		return "", ferr.New(ferr.NotFound, "metadata.ResolveCommit", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", ferr.New(ferr.Conflict, "metadata.ResolveCommit", prefix)
	}
}

// ListCommits returns every commit digest in the index, most recent
// timestamp first, ties broken by digest in descending order. It does not
// follow parent order; callers that need a
// topological traversal should walk parents from a head via GetCommit.
func (idx *Index) ListCommits() ([]string, error) {
	rows, err := idx.db.Query(`SELECT digest FROM commits ORDER BY timestamp DESC, digest DESC`)
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.ListCommits", "", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, ferr.Wrap(ferr.IO, "metadata.ListCommits", "", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.ListCommits", "", err)
	}
	return out, nil
}
