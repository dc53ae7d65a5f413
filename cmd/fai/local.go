package main

import (
	"fmt"
	"os"
	"time"

	"github.com/faiproject/fai/pkg/objectstore"
	"github.com/faiproject/fai/pkg/repo"
)

// openRepo opens the repository rooted at the current working directory.
func openRepo() (*repo.Repository, error) {
	return repo.Open(".")
}

func initCommand() error {
	r, err := repo.Init(".")
	if err != nil {
		return err
	}
	defer r.Close()
	fmt.Println("Initialized empty fai repository")
	return nil
}

func addCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: fai add <path>")
	}
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	for _, path := range os.Args[2:] {
		if err := r.Add(path); err != nil {
			return err
		}
	}
	return nil
}

func commitCommand() error {
	var message string
	var rest []string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		if args[i] == "-m" {
			if i+1 >= len(args) {
				return fmt.Errorf("usage: fai commit -m <message>")
			}
			message = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	if message == "" {
		return fmt.Errorf("usage: fai commit -m <message>")
	}
	if len(rest) != 0 {
		return fmt.Errorf("unexpected argument %q", rest[0])
	}

	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	author := os.Getenv("USER")
	if author == "" {
		author = "unknown"
	}

	digest, err := r.Commit(message, time.Now().UnixMilli(), author)
	if err != nil {
		return err
	}
	fmt.Println(digest)
	return nil
}

func statusCommand() error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	staged, err := r.Status()
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		fmt.Println("nothing staged")
		return nil
	}
	for _, f := range staged {
		fmt.Printf("staged: %s (%s, %d bytes)\n", f.Path, f.ObjectDigest, f.Size)
	}
	return nil
}

func logCommand() error {
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	commits, err := r.Log()
	if err != nil {
		return err
	}
	for _, digest := range commits {
		rec, err := r.Index().GetCommit(digest)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s  %s\n", rec.Digest, time.UnixMilli(rec.Timestamp).Format(time.RFC3339), rec.Message)
	}
	return nil
}

func diffCommand() error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: fai diff <hash1> <hash2>")
	}
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	entries, err := r.Diff(os.Args[2], os.Args[3])
	if err != nil {
		return err
	}
	for _, e := range entries {
		switch e.Status {
		case repo.DiffAdded:
			fmt.Printf("+ %s %s\n", e.Path, e.ToDigest)
		case repo.DiffRemoved:
			fmt.Printf("- %s %s\n", e.Path, e.FromDigest)
		case repo.DiffModified:
			fmt.Printf("M %s %s -> %s\n", e.Path, e.FromDigest, e.ToDigest)
		case repo.DiffUnchanged:
			fmt.Printf("= %s %s\n", e.Path, e.FromDigest)
		}
	}
	return nil
}

func chunksCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: fai chunks <hash>")
	}
	r, err := openRepo()
	if err != nil {
		return err
	}
	defer r.Close()

	digest, err := objectstore.Parse(os.Args[2])
	if err != nil {
		return err
	}

	isManifest, err := r.Store().IsManifest(digest)
	if err != nil {
		return err
	}
	if !isManifest {
		fmt.Println(os.Args[2])
		return nil
	}

	manifest, err := r.Store().Manifest(digest)
	if err != nil {
		return err
	}
	for _, chunk := range manifest.Chunks {
		fmt.Println(chunk)
	}
	return nil
}
