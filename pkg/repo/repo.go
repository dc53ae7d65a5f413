// Package repo implements the repository service: it coordinates the
// object store and the metadata index and presents the user-facing
// operations (init, add, commit, log, diff, head) with no network
// knowledge of its own.
package repo

import (
	"os"
	"path/filepath"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/metadata"
	"github.com/faiproject/fai/pkg/objectstore"
)

const (
	objectsDirName = "objects"
	dbFileName     = "db.sqlite"
)

// Repository ties together one root directory's object store, metadata
// index, and HEAD pointer.
type Repository struct {
	root  string
	store *objectstore.Store
	index *metadata.Index
}

// Init creates a new repository at root: the objects/ directory, the
// metadata database, and an empty HEAD pointing at the default branch.
func Init(root string) (*Repository, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, ferr.Wrap(ferr.IO, "repo.Init", root, err)
	}

	store, err := objectstore.Open(filepath.Join(root, objectsDirName))
	if err != nil {
		return nil, err
	}

	index, err := metadata.Open(filepath.Join(root, dbFileName))
	if err != nil {
		return nil, err
	}

	r := &Repository{root: root, store: store, index: index}
	if err := r.writeInitialHead(); err != nil {
		index.Close()
		return nil, err
	}
	return r, nil
}

// Open attaches to an already-initialized repository at root.
func Open(root string) (*Repository, error) {
	if _, err := os.Stat(filepath.Join(root, headFileName)); err != nil {
		return nil, ferr.Wrap(ferr.NotFound, "repo.Open", root, err)
	}

	store, err := objectstore.Open(filepath.Join(root, objectsDirName))
	if err != nil {
		return nil, err
	}

	index, err := metadata.Open(filepath.Join(root, dbFileName))
	if err != nil {
		return nil, err
	}

	return &Repository{root: root, store: store, index: index}, nil
}

// Close releases the repository's open resources.
func (r *Repository) Close() error {
	return r.index.Close()
}

func (r *Repository) path(elem ...string) string {
	return filepath.Join(append([]string{r.root}, elem...)...)
}

// Store exposes the underlying object store, for the sync engine.
func (r *Repository) Store() *objectstore.Store { return r.store }

// Index exposes the underlying metadata index, for the sync engine.
func (r *Repository) Index() *metadata.Index { return r.index }

// Add reads the file at path, stores its bytes, and stages it under its
// repository-relative path.
func (r *Repository) Add(repoRelativePath string) error {
	fullPath := r.path(repoRelativePath)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ferr.Wrap(ferr.NotFound, "repo.Add", repoRelativePath, err)
		}
		return ferr.Wrap(ferr.IO, "repo.Add", repoRelativePath, err)
	}

	digest, err := r.store.StoreFile(fullPath)
	if err != nil {
		return err
	}

	return r.index.AddStaged(repoRelativePath, digest.String(), uint64(info.Size()))
}

// Head returns the commit digest HEAD currently resolves to, and false if
// no commit has been made yet.
func (r *Repository) Head() (string, bool, error) {
	digest, err := r.readHead()
	if err != nil {
		return "", false, err
	}
	return digest, digest != "", nil
}

// SetHead points HEAD directly at an existing commit digest.
func (r *Repository) SetHead(digest string) error {
	has, err := r.index.HasCommit(digest)
	if err != nil {
		return err
	}
	if !has {
		return ferr.New(ferr.NotFound, "repo.SetHead", digest)
	}
	return r.writeHead(digest)
}

// Status returns the currently staged files.
func (r *Repository) Status() ([]metadata.StagedFile, error) {
	return r.index.ListStaged()
}

// Log returns every known commit digest, most recent first.
func (r *Repository) Log() ([]string, error) {
	return r.index.ListCommits()
}
