package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/faiproject/fai/pkg/objectstore"
	"github.com/faiproject/fai/pkg/sync"
	"github.com/faiproject/fai/pkg/sync/discovery"
)

func trustCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: fai trust <peer>")
	}
	spec, err := parsePeerSpec(os.Args[2])
	if err != nil {
		return err
	}
	return rememberPeer(spec)
}

func serveCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("usage: fai serve [--transport tcp|quic]")
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}

	fmt.Printf("peer id:       %s\n", id.PeerID())
	fmt.Printf("signing key:   %s\n", hex.EncodeToString(id.SigningPublicKey))
	fmt.Printf("key agreement: %s\n", hex.EncodeToString(id.KeyAgreementPublicKey[:]))

	server := sync.NewServer(id, r, knownPeerLookup())
	port := t.DefaultPort()
	listenAddr := fmt.Sprintf("0.0.0.0:%d", port)
	fmt.Printf("listening on %s (%s)\n", listenAddr, t.Name())

	ctx := background()
	discoveryTable := discovery.NewTable()
	if err := discoveryTable.Start(ctx, id.PeerID(), port); err != nil {
		fmt.Fprintf(os.Stderr, "fai: discovery disabled: %v\n", err)
	} else {
		defer discoveryTable.Stop()
	}

	return server.Serve(ctx, t, listenAddr)
}

func peersCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("usage: fai peers [--transport tcp|quic]")
	}

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}

	table := discovery.NewTable()
	ctx := background()
	if err := table.Start(ctx, id.PeerID(), t.DefaultPort()); err != nil {
		return err
	}
	defer table.Stop()

	peers := table.Peers()
	if len(peers) == 0 {
		fmt.Println("no peers discovered yet")
		return nil
	}
	for _, p := range peers {
		fmt.Printf("%s  %v  port %d\n", p.PeerID, p.Addrs, p.Port)
	}
	return nil
}

func fetchCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) < 2 {
		return fmt.Errorf("usage: fai fetch [--transport tcp|quic] <peer> <hash>")
	}
	spec, err := parsePeerSpec(rest[0])
	if err != nil {
		return err
	}
	digest := rest[1]

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	if err := rememberPeer(spec); err != nil {
		return err
	}

	client := sync.NewClient(id, t)
	ctx := background()
	data, err := client.RequestChunk(ctx, spec.addr, spec.signingKey, spec.keyAgreement, digest)
	if err != nil {
		return err
	}
	if data == nil {
		fmt.Printf("%s: not found on peer\n", digest)
		return nil
	}

	parsed, err := objectstore.Parse(digest)
	if err != nil {
		return err
	}
	if err := r.Store().PutTagged(parsed, data); err != nil {
		return err
	}
	fmt.Printf("fetched %s (%d bytes)\n", digest, len(data))
	return nil
}

func pushCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: fai push [--transport tcp|quic] <peer>")
	}
	spec, err := parsePeerSpec(rest[0])
	if err != nil {
		return err
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	if err := rememberPeer(spec); err != nil {
		return err
	}

	client := sync.NewClient(id, t)
	ctx := background()
	if err := sync.Push(ctx, client, spec.addr, spec.signingKey, spec.keyAgreement, r); err != nil {
		return err
	}
	fmt.Println("push complete")
	return nil
}

func pullCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: fai pull [--transport tcp|quic] <peer> [<hash>]")
	}
	spec, err := parsePeerSpec(rest[0])
	if err != nil {
		return err
	}
	var commitDigest string
	if len(rest) > 1 {
		commitDigest = rest[1]
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	if err := rememberPeer(spec); err != nil {
		return err
	}

	client := sync.NewClient(id, t)
	ctx := background()
	report, err := sync.Pull(ctx, client, spec.addr, spec.signingKey, spec.keyAgreement, r, commitDigest)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func cloneCommand() error {
	t, rest, err := selectTransport(os.Args[2:])
	if err != nil {
		return err
	}
	if len(rest) < 1 {
		return fmt.Errorf("usage: fai clone [--transport tcp|quic] <peer> [<dir>]")
	}
	spec, err := parsePeerSpec(rest[0])
	if err != nil {
		return err
	}
	dir := "."
	if len(rest) > 1 {
		dir = rest[1]
	}

	id, err := loadOrCreateIdentity()
	if err != nil {
		return err
	}
	if err := rememberPeer(spec); err != nil {
		return err
	}

	client := sync.NewClient(id, t)
	ctx := background()
	report, err := sync.Clone(ctx, client, spec.addr, spec.signingKey, spec.keyAgreement, dir)
	if err != nil {
		return err
	}
	printReport(report)
	return nil
}

func printReport(report *sync.Report) {
	fmt.Printf("commits received: %d\n", report.CommitsReceived)
	fmt.Printf("objects fetched:  %d\n", report.ObjectsFetched)
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "failed: %s (%s): %v\n", f.Path, f.Digest, f.Err)
	}
}
