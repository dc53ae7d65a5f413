package repo

import (
	"os"
	"strings"

	"github.com/faiproject/fai/pkg/ferr"
)

const (
	headFileName      = "HEAD"
	defaultBranchName = "main"
	refPrefix         = "ref: refs/heads/"
)

// readHead returns the commit digest HEAD currently resolves to, or ""
// if HEAD is a symbolic branch reference with no commits yet.
func (r *Repository) readHead() (string, error) {
	data, err := os.ReadFile(r.path(headFileName))
	if err != nil {
		return "", ferr.Wrap(ferr.IO, "repo.readHead", r.path(headFileName), err)
	}

	line := strings.TrimSpace(string(data))
	if strings.HasPrefix(line, refPrefix) {
		return "", nil // symbolic, never committed to yet
	}
	return line, nil
}

// writeHead overwrites HEAD with a raw commit digest, the only form
// set_head and commit ever produce (this implementation does not support
// multiple named branches, only the initial symbolic default and a
// detached digest thereafter).
func (r *Repository) writeHead(digest string) error {
	path := r.path(headFileName)
	if err := os.WriteFile(path, []byte(digest+"\n"), 0644); err != nil {
		return ferr.Wrap(ferr.IO, "repo.writeHead", path, err)
	}
	return nil
}

func (r *Repository) writeInitialHead() error {
	path := r.path(headFileName)
	if err := os.WriteFile(path, []byte(refPrefix+defaultBranchName+"\n"), 0644); err != nil {
		return ferr.Wrap(ferr.IO, "repo.writeInitialHead", path, err)
	}
	return nil
}
