// Package metadata implements the repository's commit graph and staging
// index: a small embedded relational store (SQLite via mattn/go-sqlite3)
// holding commits, their parent edges, the files each commit covers, and
// the currently staged paths awaiting the next commit.
package metadata

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/faiproject/fai/pkg/ferr"
)

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	digest     TEXT PRIMARY KEY,
	message    TEXT NOT NULL,
	timestamp  INTEGER NOT NULL,
	author     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commit_parents (
	commit_digest  TEXT NOT NULL REFERENCES commits(digest),
	parent_digest  TEXT NOT NULL,
	ordinal        INTEGER NOT NULL,
	PRIMARY KEY (commit_digest, ordinal)
);

CREATE TABLE IF NOT EXISTS commit_files (
	commit_digest  TEXT NOT NULL REFERENCES commits(digest),
	path           TEXT NOT NULL,
	object_digest  TEXT NOT NULL,
	size           INTEGER NOT NULL,
	PRIMARY KEY (commit_digest, path)
);

CREATE TABLE IF NOT EXISTS staging (
	path           TEXT PRIMARY KEY,
	object_digest  TEXT NOT NULL,
	size           INTEGER NOT NULL
);
`

// Index wraps the embedded SQLite connection backing a repository's
// metadata.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the schema is present.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, ferr.Wrap(ferr.IO, "metadata.Open", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite allows one writer; serialize through a single connection

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, ferr.Wrap(ferr.IO, "metadata.Open", path, err)
	}

	return &Index{db: db}, nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	if err := idx.db.Close(); err != nil {
		return ferr.Wrap(ferr.IO, "metadata.Close", "", err)
	}
	return nil
}
