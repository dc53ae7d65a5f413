package sync

import (
	"context"
	"crypto/ed25519"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/metadata"
	"github.com/faiproject/fai/pkg/objectstore"
	"github.com/faiproject/fai/pkg/repo"
)

// FileFailure records one file this clone/pull could not fully materialize,
// so the caller gets a best-effort report instead of an all-or-nothing
// failure (spec.md §4.4's "per-file best-effort" failure semantics).
type FileFailure struct {
	Path   string
	Digest string
	Err    error
}

// Report summarizes the outcome of a Clone or Pull call.
type Report struct {
	CommitsReceived int
	ObjectsFetched  int
	Failures        []FileFailure
}

// Clone fetches every commit and object a peer holds into a freshly
// initialized repository at destDir, then sets HEAD to the tip: the one
// received commit that is not a parent of any other received commit.
func Clone(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, destDir string) (*Report, error) {
	r, err := repo.Init(destDir)
	if err != nil {
		return nil, err
	}

	commits, err := client.RequestCommits(ctx, addr, peerSigningKey, peerKeyAgreementKey, nil, nil)
	if err != nil {
		r.Close()
		return nil, err
	}
	if len(commits) == 0 {
		r.Close()
		return nil, ferr.New(ferr.Empty, "sync.Clone", addr)
	}

	report, err := fetchAndStoreCommits(ctx, client, addr, peerSigningKey, peerKeyAgreementKey, r, commits)
	if err != nil {
		r.Close()
		return nil, err
	}

	tip, err := tipOf(commits)
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := r.SetHead(tip); err != nil {
		r.Close()
		return nil, err
	}

	return report, r.Close()
}

// fetchAndStoreCommits decodes each wire-encoded commit record, fetches any
// referenced object this repository does not already hold, and records the
// commit in the metadata index. Objects are fetched before the commit that
// references them is recorded; a file whose object cannot be fetched is
// listed in the report's Failures and the commit is still recorded, so a
// recorded commit may reference objects this repository does not hold.
func fetchAndStoreCommits(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, r *repo.Repository, encoded [][]byte) (*Report, error) {
	report := &Report{}

	for _, raw := range encoded {
		rec, err := decodeCommitRecord(raw)
		if err != nil {
			return nil, ferr.Wrap(ferr.Invalid, "sync.fetchAndStoreCommits", "", err)
		}

		for _, f := range rec.Files {
			if err := fetchObjectIfMissing(ctx, client, addr, peerSigningKey, peerKeyAgreementKey, r, f); err != nil {
				report.Failures = append(report.Failures, FileFailure{Path: f.Path, Digest: f.ObjectDigest, Err: err})
				continue
			}
			report.ObjectsFetched++
		}

		if err := r.Index().PutCommit(rec); err != nil {
			return nil, err
		}
		report.CommitsReceived++
	}

	return report, nil
}

// fetchObjectIfMissing fetches f's object (and, if it is a manifest, every
// chunk it lists) from the peer, unless the local store already holds it.
func fetchObjectIfMissing(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, r *repo.Repository, f metadata.CommitFile) error {
	digest, err := objectstore.Parse(f.ObjectDigest)
	if err != nil {
		return ferr.Wrap(ferr.Invalid, "sync.fetchObjectIfMissing", f.ObjectDigest, err)
	}
	if r.Store().Exists(digest) {
		return nil
	}

	tagged, err := client.RequestChunk(ctx, addr, peerSigningKey, peerKeyAgreementKey, f.ObjectDigest)
	if err != nil {
		return err
	}
	if tagged == nil {
		return ferr.New(ferr.NotFound, "sync.fetchObjectIfMissing", f.ObjectDigest)
	}
	if err := r.Store().PutTagged(digest, tagged); err != nil {
		return err
	}

	isManifest, err := r.Store().IsManifest(digest)
	if err != nil {
		return err
	}
	if !isManifest {
		return nil
	}

	manifest, err := r.Store().Manifest(digest)
	if err != nil {
		return err
	}
	for _, chunkDigestStr := range manifest.Chunks {
		chunkDigest, err := objectstore.Parse(chunkDigestStr)
		if err != nil {
			return ferr.Wrap(ferr.Invalid, "sync.fetchObjectIfMissing", chunkDigestStr, err)
		}
		if r.Store().Exists(chunkDigest) {
			continue
		}
		chunkData, err := client.RequestChunk(ctx, addr, peerSigningKey, peerKeyAgreementKey, chunkDigestStr)
		if err != nil {
			return err
		}
		if chunkData == nil {
			return ferr.New(ferr.NotFound, "sync.fetchObjectIfMissing", chunkDigestStr)
		}
		if err := r.Store().PutTagged(chunkDigest, chunkData); err != nil {
			return err
		}
	}
	return nil
}

// tipOf finds the one commit digest among encoded that is never listed as
// another's parent.
func tipOf(encoded [][]byte) (string, error) {
	isParent := make(map[string]bool, len(encoded))
	digests := make([]string, 0, len(encoded))

	for _, raw := range encoded {
		rec, err := decodeCommitRecord(raw)
		if err != nil {
			return "", ferr.Wrap(ferr.Invalid, "sync.tipOf", "", err)
		}
		digests = append(digests, rec.Digest)
		for _, p := range rec.Parents {
			isParent[p] = true
		}
	}

	for _, d := range digests {
		if !isParent[d] {
			return d, nil
		}
	}
	return "", ferr.New(ferr.Invalid, "sync.tipOf", "no single tip found among received commits")
}
