package sync

import (
	"context"
	"crypto/ed25519"

	"github.com/faiproject/fai/pkg/ferr"
	"github.com/faiproject/fai/pkg/metadata"
	"github.com/faiproject/fai/pkg/objectstore"
	"github.com/faiproject/fai/pkg/repo"
)

// Push sends every commit reachable from HEAD that the peer does not
// already report holding (per its own commit log) to addr, along with any
// object those commits reference that the peer is missing. The peer's
// commit-stream handler stores pushed commits exactly as it would commits
// it had requested itself (see Server.handleCommitPush).
func Push(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, r *repo.Repository) error {
	head, ok, err := r.Head()
	if err != nil {
		return err
	}
	if !ok {
		return ferr.New(ferr.Empty, "sync.Push", "no local HEAD")
	}

	peerHave, err := client.RequestCommits(ctx, addr, peerSigningKey, peerKeyAgreementKey, nil, nil)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(peerHave))
	for _, raw := range peerHave {
		rec, decodeErr := decodeCommitRecord(raw)
		if decodeErr != nil {
			continue
		}
		have[rec.Digest] = true
	}

	toSend, err := collectMissingCommits(r, head, have)
	if err != nil {
		return err
	}
	if len(toSend) == 0 {
		return nil
	}

	if err := pushObjects(ctx, client, addr, peerSigningKey, peerKeyAgreementKey, r, toSend); err != nil {
		return err
	}

	encoded := make([][]byte, len(toSend))
	for i, rec := range toSend {
		data, err := encodeCommitRecord(rec)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	return client.SendCommits(ctx, addr, peerSigningKey, peerKeyAgreementKey, encoded)
}

// collectMissingCommits walks the commit graph backward from head, stopping
// at any commit the peer already reports having, and returns the rest in
// parents-before-children order.
func collectMissingCommits(r *repo.Repository, head string, have map[string]bool) ([]*metadata.CommitRecord, error) {
	var ordered []*metadata.CommitRecord
	visited := make(map[string]bool)

	var visit func(digest string) error
	visit = func(digest string) error {
		if digest == "" || have[digest] || visited[digest] {
			return nil
		}
		visited[digest] = true

		rec, err := r.Index().GetCommit(digest)
		if err != nil {
			return err
		}
		for _, parent := range rec.Parents {
			if err := visit(parent); err != nil {
				return err
			}
		}
		ordered = append(ordered, rec)
		return nil
	}

	if err := visit(head); err != nil {
		return nil, err
	}
	return ordered, nil
}

// pushObjects sends any object referenced by commits that the peer does
// not already hold, probed via a chunk request (a nil, nil result means
// the peer lacks it and needs it pushed).
func pushObjects(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, r *repo.Repository, commits []*metadata.CommitRecord) error {
	sent := make(map[string]bool)

	for _, rec := range commits {
		for _, f := range rec.Files {
			if sent[f.ObjectDigest] {
				continue
			}

			digest, err := objectstore.Parse(f.ObjectDigest)
			if err != nil {
				return ferr.Wrap(ferr.Invalid, "sync.pushObjects", f.ObjectDigest, err)
			}
			tagged, err := r.Store().TaggedBytes(digest)
			if err != nil {
				return err
			}

			existing, err := client.RequestChunk(ctx, addr, peerSigningKey, peerKeyAgreementKey, f.ObjectDigest)
			if err != nil {
				return err
			}
			if existing != nil {
				sent[f.ObjectDigest] = true
				continue // peer already has it
			}

			if err := client.sendObject(ctx, addr, peerSigningKey, peerKeyAgreementKey, f.ObjectDigest, tagged); err != nil {
				return err
			}
			sent[f.ObjectDigest] = true
		}
	}
	return nil
}
