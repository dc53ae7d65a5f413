package objectstore

import (
	"bytes"
	"testing"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
)

func TestStoreRawRetrieveSmallBlob(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := []byte("small blob content")
	d, err := s.StoreBlob(data, "file.txt")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	isManifest, err := s.IsManifest(d)
	if err != nil {
		t.Fatalf("IsManifest: %v", err)
	}
	if isManifest {
		t.Error("small blob should not be stored as a manifest")
	}

	got, err := s.Retrieve(d)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("retrieved data mismatch: got %q, want %q", got, data)
	}
}

func TestStoreBlobLargerThanChunkProducesManifest(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := make([]byte, constants.ChunkSize*2+17)
	for i := range data {
		data[i] = byte(i % 251)
	}

	d, err := s.StoreBlob(data, "big.bin")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	isManifest, err := s.IsManifest(d)
	if err != nil {
		t.Fatalf("IsManifest: %v", err)
	}
	if !isManifest {
		t.Fatal("blob larger than one chunk should be stored as a manifest")
	}

	manifest, err := s.Manifest(d)
	if err != nil {
		t.Fatalf("Manifest: %v", err)
	}
	if len(manifest.Chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(manifest.Chunks))
	}
	if manifest.TotalSize != uint64(len(data)) {
		t.Errorf("expected total size %d, got %d", len(data), manifest.TotalSize)
	}

	got, err := s.Retrieve(d)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("reassembled data does not match original")
	}
}

func TestManifestPayloadLooksLikeJSONButIsNotMistakenForRaw(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Content that happens to start with '{' — the exact ambiguity the
	// kind-tag byte exists to resolve.
	data := []byte(`{"not": "a manifest", "just": "raw bytes that look like json"}`)
	d, err := s.StoreBlob(data, "")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	isManifest, err := s.IsManifest(d)
	if err != nil {
		t.Fatalf("IsManifest: %v", err)
	}
	if isManifest {
		t.Fatal("raw blob beginning with '{' must not be classified as a manifest")
	}

	got, err := s.Retrieve(d)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("retrieved raw JSON-looking blob does not match original")
	}
}

func TestRetrieveNotFound(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	missing := Sum([]byte("never stored"))
	_, err = s.Retrieve(missing)
	if err == nil {
		t.Fatal("expected error retrieving a digest never stored")
	}
	if ferr.CodeOf(err) != ferr.NotFound {
		t.Errorf("expected ferr.NotFound, got %v", ferr.CodeOf(err))
	}
}

func TestStoreIdempotent(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := []byte("idempotent content")
	d1, err := s.StoreBlob(data, "")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	d2, err := s.StoreBlob(data, "")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	if !d1.Equal(d2) {
		t.Error("storing the same content twice should yield the same digest")
	}
}

func TestExists(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d := Sum([]byte("not stored yet"))
	if s.Exists(d) {
		t.Error("Exists should be false before storing")
	}

	stored, err := s.StoreBlob([]byte("not stored yet"), "")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	if !s.Exists(stored) {
		t.Error("Exists should be true after storing")
	}
}

func TestOpenChunkRejectsManifest(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := make([]byte, constants.ChunkSize+1)
	d, err := s.StoreBlob(data, "")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	_, err = s.OpenChunk(d)
	if err == nil {
		t.Fatal("expected error calling OpenChunk on a manifest digest")
	}
}

func TestTaggedBytesRoundTripsThroughPutTagged(t *testing.T) {
	src, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	dst, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d, err := src.StoreBlob([]byte("peer transfer content"), "file.txt")
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	tagged, err := src.TaggedBytes(d)
	if err != nil {
		t.Fatalf("TaggedBytes: %v", err)
	}

	if err := dst.PutTagged(d, tagged); err != nil {
		t.Fatalf("PutTagged: %v", err)
	}

	got, err := dst.Retrieve(d)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !bytes.Equal(got, []byte("peer transfer content")) {
		t.Errorf("retrieved data mismatch: got %q", got)
	}
}

func TestPutTaggedRejectsMismatchedDigest(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	wrongDigest := Sum([]byte("unrelated"))
	tagged := append([]byte{kindRaw}, []byte("mismatched content")...)

	if err := s.PutTagged(wrongDigest, tagged); err == nil {
		t.Fatal("expected error for digest mismatch")
	}
	if ferr.CodeOf(s.PutTagged(wrongDigest, tagged)) != ferr.Invalid {
		t.Error("expected ferr.Invalid for digest mismatch")
	}
}
