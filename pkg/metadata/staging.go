package metadata

import (
	"github.com/faiproject/fai/pkg/ferr"
)

// StagedFile is one path queued for the next commit.
type StagedFile struct {
	Path         string
	ObjectDigest string
	Size         uint64
}

// AddStaged stages a path, overwriting any previous staged entry for it.
func (idx *Index) AddStaged(path, objectDigest string, size uint64) error {
	_, err := idx.db.Exec(
		`INSERT INTO staging (path, object_digest, size) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET object_digest = excluded.object_digest, size = excluded.size`,
		path, objectDigest, size,
	)
	if err != nil {
		return ferr.Wrap(ferr.IO, "metadata.AddStaged", path, err)
	}
	return nil
}

// RemoveStaged un-stages a path. It is not an error to remove a path that
// was never staged.
func (idx *Index) RemoveStaged(path string) error {
	if _, err := idx.db.Exec(`DELETE FROM staging WHERE path = ?`, path); err != nil {
		return ferr.Wrap(ferr.IO, "metadata.RemoveStaged", path, err)
	}
	return nil
}

// ListStaged returns every staged file, ordered by path.
func (idx *Index) ListStaged() ([]StagedFile, error) {
	rows, err := idx.db.Query(`SELECT path, object_digest, size FROM staging ORDER BY path`)
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.ListStaged", "", err)
	}
	defer rows.Close()

	var out []StagedFile
	for rows.Next() {
		var f StagedFile
		if err := rows.Scan(&f.Path, &f.ObjectDigest, &f.Size); err != nil {
			return nil, ferr.Wrap(ferr.IO, "metadata.ListStaged", "", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.ListStaged", "", err)
	}
	return out, nil
}

// ClearStaged empties the staging area, typically called right after a
// commit captures it.
func (idx *Index) ClearStaged() error {
	if _, err := idx.db.Exec(`DELETE FROM staging`); err != nil {
		return ferr.Wrap(ferr.IO, "metadata.ClearStaged", "", err)
	}
	return nil
}
