package sync

import (
	"context"
	"crypto/ed25519"

	"github.com/faiproject/fai/pkg/repo"
)

// Pull fetches commits reachable from commitDigest (or every commit the
// peer knows, if commitDigest is "") into r, skipping any object the local
// store already holds. Pull never moves HEAD: it is receive-only.
func Pull(ctx context.Context, client *Client, addr string, peerSigningKey ed25519.PublicKey, peerKeyAgreementKey []byte, r *repo.Repository, commitDigest string) (*Report, error) {
	var heads []string
	if commitDigest != "" {
		heads = []string{commitDigest}
	}

	localCommits, err := r.Log()
	if err != nil {
		return nil, err
	}

	commits, err := client.RequestCommits(ctx, addr, peerSigningKey, peerKeyAgreementKey, heads, localCommits)
	if err != nil {
		return nil, err
	}

	return fetchAndStoreCommits(ctx, client, addr, peerSigningKey, peerKeyAgreementKey, r, commits)
}
