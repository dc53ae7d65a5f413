package metadata

import (
	"path/filepath"
	"testing"

	"github.com/faiproject/fai/pkg/ferr"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "fai.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestStagingLifecycle(t *testing.T) {
	idx := openTestIndex(t)

	if err := idx.AddStaged("a.bin", "digest-a", 19); err != nil {
		t.Fatalf("AddStaged: %v", err)
	}
	if err := idx.AddStaged("b.bin", "digest-b", 19); err != nil {
		t.Fatalf("AddStaged: %v", err)
	}

	staged, err := idx.ListStaged()
	if err != nil {
		t.Fatalf("ListStaged: %v", err)
	}
	if len(staged) != 2 {
		t.Fatalf("expected 2 staged files, got %d", len(staged))
	}
	if staged[0].Path != "a.bin" || staged[1].Path != "b.bin" {
		t.Errorf("unexpected staged order: %+v", staged)
	}

	if err := idx.AddStaged("a.bin", "digest-a2", 19); err != nil {
		t.Fatalf("AddStaged overwrite: %v", err)
	}
	staged, err = idx.ListStaged()
	if err != nil {
		t.Fatalf("ListStaged: %v", err)
	}
	if staged[0].ObjectDigest != "digest-a2" {
		t.Errorf("expected overwritten digest, got %q", staged[0].ObjectDigest)
	}

	if err := idx.RemoveStaged("a.bin"); err != nil {
		t.Fatalf("RemoveStaged: %v", err)
	}
	staged, err = idx.ListStaged()
	if err != nil {
		t.Fatalf("ListStaged: %v", err)
	}
	if len(staged) != 1 || staged[0].Path != "b.bin" {
		t.Errorf("expected only b.bin staged, got %+v", staged)
	}

	if err := idx.ClearStaged(); err != nil {
		t.Fatalf("ClearStaged: %v", err)
	}
	staged, err = idx.ListStaged()
	if err != nil {
		t.Fatalf("ListStaged: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("expected empty staging after clear, got %+v", staged)
	}
}

func TestPutAndGetCommit(t *testing.T) {
	idx := openTestIndex(t)

	rec := &CommitRecord{
		Digest:    "commit-1",
		Message:   "initial import",
		Timestamp: 1000,
		Author:    "alice",
		Parents:   nil,
		Files: []CommitFile{
			{Path: "a.bin", ObjectDigest: "obj-a", Size: 19},
			{Path: "b.bin", ObjectDigest: "obj-b", Size: 19},
		},
	}

	if err := idx.PutCommit(rec); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}

	got, err := idx.GetCommit("commit-1")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.Message != rec.Message || got.Author != rec.Author {
		t.Errorf("commit record mismatch: %+v", got)
	}
	if len(got.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(got.Files))
	}

	has, err := idx.HasCommit("commit-1")
	if err != nil {
		t.Fatalf("HasCommit: %v", err)
	}
	if !has {
		t.Error("expected HasCommit to be true")
	}

	has, err = idx.HasCommit("nonexistent")
	if err != nil {
		t.Fatalf("HasCommit: %v", err)
	}
	if has {
		t.Error("expected HasCommit to be false for unknown digest")
	}
}

func TestPutCommitRejectsBlankMessage(t *testing.T) {
	idx := openTestIndex(t)

	rec := &CommitRecord{Digest: "commit-blank", Message: "  ", Timestamp: 1000, Author: "alice"}
	if err := idx.PutCommit(rec); ferr.CodeOf(err) != ferr.Invalid {
		t.Errorf("expected ferr.Invalid for a blank message, got %v", err)
	}

	has, err := idx.HasCommit("commit-blank")
	if err != nil {
		t.Fatalf("HasCommit: %v", err)
	}
	if has {
		t.Error("a commit rejected for a blank message must not be recorded")
	}
}

func TestPutCommitRejectsNegativeTimestamp(t *testing.T) {
	idx := openTestIndex(t)

	rec := &CommitRecord{Digest: "commit-negative-ts", Message: "initial import", Timestamp: -1, Author: "alice"}
	if err := idx.PutCommit(rec); ferr.CodeOf(err) != ferr.Invalid {
		t.Errorf("expected ferr.Invalid for a negative timestamp, got %v", err)
	}
}

func TestPutCommitIdempotent(t *testing.T) {
	idx := openTestIndex(t)

	rec := &CommitRecord{
		Digest:    "commit-1",
		Message:   "first",
		Timestamp: 1000,
		Author:    "alice",
		Files:     []CommitFile{{Path: "a.bin", ObjectDigest: "obj-a", Size: 19}},
	}

	if err := idx.PutCommit(rec); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}
	// Second write with the same digest must succeed and not duplicate rows.
	if err := idx.PutCommit(rec); err != nil {
		t.Fatalf("PutCommit (repeat): %v", err)
	}

	files, err := idx.CommitFiles("commit-1")
	if err != nil {
		t.Fatalf("CommitFiles: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file after repeated PutCommit, got %d", len(files))
	}
}

func TestCommitWithParents(t *testing.T) {
	idx := openTestIndex(t)

	root := &CommitRecord{Digest: "root", Message: "root", Timestamp: 1, Author: "a"}
	if err := idx.PutCommit(root); err != nil {
		t.Fatalf("PutCommit root: %v", err)
	}

	child := &CommitRecord{
		Digest:    "child",
		Message:   "child",
		Timestamp: 2,
		Author:    "a",
		Parents:   []string{"root"},
	}
	if err := idx.PutCommit(child); err != nil {
		t.Fatalf("PutCommit child: %v", err)
	}

	got, err := idx.GetCommit("child")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if len(got.Parents) != 1 || got.Parents[0] != "root" {
		t.Errorf("expected parents [root], got %v", got.Parents)
	}
}

func TestGetCommitNotFound(t *testing.T) {
	idx := openTestIndex(t)

	_, err := idx.GetCommit("missing")
	if err == nil {
		t.Fatal("expected error for missing commit")
	}
	if ferr.CodeOf(err) != ferr.NotFound {
		t.Errorf("expected ferr.NotFound, got %v", ferr.CodeOf(err))
	}
}

func TestListCommits(t *testing.T) {
	idx := openTestIndex(t)

	for i, digest := range []string{"c1", "c2", "c3"} {
		rec := &CommitRecord{Digest: digest, Message: "m", Timestamp: int64(i), Author: "a"}
		if err := idx.PutCommit(rec); err != nil {
			t.Fatalf("PutCommit: %v", err)
		}
	}

	all, err := idx.ListCommits()
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 commits, got %d", len(all))
	}
}

func TestResolveCommitUnambiguousPrefix(t *testing.T) {
	idx := openTestIndex(t)

	for i, digest := range []string{"aabbcc11", "ddeeff22"} {
		rec := &CommitRecord{Digest: digest, Message: "m", Timestamp: int64(i), Author: "a"}
		if err := idx.PutCommit(rec); err != nil {
			t.Fatalf("PutCommit: %v", err)
		}
	}

	full, err := idx.ResolveCommit("aabb")
	if err != nil {
		t.Fatalf("ResolveCommit: %v", err)
	}
	if full != "aabbcc11" {
		t.Errorf("ResolveCommit(\"aabb\") = %q, want aabbcc11", full)
	}

	full, err = idx.ResolveCommit("aabbcc11")
	if err != nil {
		t.Fatalf("ResolveCommit full digest: %v", err)
	}
	if full != "aabbcc11" {
		t.Errorf("ResolveCommit full digest = %q, want aabbcc11", full)
	}
}

func TestResolveCommitAmbiguousPrefixFails(t *testing.T) {
	idx := openTestIndex(t)

	for i, digest := range []string{"aabb1111", "aabb2222"} {
		rec := &CommitRecord{Digest: digest, Message: "m", Timestamp: int64(i), Author: "a"}
		if err := idx.PutCommit(rec); err != nil {
			t.Fatalf("PutCommit: %v", err)
		}
	}

	_, err := idx.ResolveCommit("aabb")
	if err == nil {
		t.Fatal("expected error for ambiguous prefix")
	}
	if ferr.CodeOf(err) != ferr.Conflict {
		t.Errorf("expected ferr.Conflict, got %v", ferr.CodeOf(err))
	}
}

func TestResolveCommitNoMatchFails(t *testing.T) {
	idx := openTestIndex(t)

	_, err := idx.ResolveCommit("zz99")
	if err == nil {
		t.Fatal("expected error for unmatched prefix")
	}
	if ferr.CodeOf(err) != ferr.NotFound {
		t.Errorf("expected ferr.NotFound, got %v", ferr.CodeOf(err))
	}
}
