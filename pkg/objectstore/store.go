package objectstore

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
)

// Store is an on-disk, content-addressed blob store rooted at a directory
// (conventionally "<repo>/objects"). Blobs are sharded two levels deep by
// the first bytes of their hex digest to keep any one directory small.
type Store struct {
	root string
}

// Open returns a Store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ferr.Wrap(ferr.IO, "objectstore.Open", dir, err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) pathFor(d Digest) string {
	prefix, rest := d.ShardPath()
	return filepath.Join(s.root, prefix, rest)
}

// Exists reports whether a blob for this digest is present.
func (s *Store) Exists(d Digest) bool {
	_, err := os.Stat(s.pathFor(d))
	return err == nil
}

// StoreRaw writes data as a single blob tagged as raw and returns its
// digest. It does not check the size of data; StoreBlob is the entry point
// that sends data larger than one chunk through chunking and a manifest.
func (s *Store) StoreRaw(data []byte) (Digest, error) {
	d := Sum(data)
	tagged := make([]byte, 0, len(data)+1)
	tagged = append(tagged, kindRaw)
	tagged = append(tagged, data...)
	if err := s.writeAtomic(d, tagged); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// StoreBlob stores arbitrary-length data, chunking it and writing a
// manifest when it exceeds one chunk, and returns the digest the caller
// should record: either the raw blob's digest, or the manifest's.
func (s *Store) StoreBlob(data []byte, filename string) (Digest, error) {
	if len(data) <= constants.ChunkSize {
		return s.StoreRaw(data)
	}

	chunks := ChunkData(data)
	for _, c := range chunks {
		if _, err := s.StoreRaw(c.Data); err != nil {
			return Digest{}, err
		}
	}

	manifest := BuildManifest(chunks, filename)
	encoded, err := manifest.encode()
	if err != nil {
		return Digest{}, err
	}
	manifestDigest := Sum(encoded[1:]) // digest covers the JSON body, not the tag
	if err := s.writeAtomic(manifestDigest, encoded); err != nil {
		return Digest{}, err
	}
	return manifestDigest, nil
}

// StoreFile chunks and stores the file at path, returning its digest.
func (s *Store) StoreFile(path string) (Digest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Digest{}, ferr.Wrap(ferr.IO, "objectstore.StoreFile", path, err)
	}
	return s.StoreBlob(data, filepath.Base(path))
}

// writeAtomic writes data to the blob's final path via a temp file plus
// rename, so a crash mid-write never leaves a corrupt object visible under
// its digest.
func (s *Store) writeAtomic(d Digest, data []byte) error {
	path := s.pathFor(d)
	if _, err := os.Stat(path); err == nil {
		return nil // already stored; content-addressed, so identical by construction
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}
	if err := tmp.Close(); err != nil {
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ferr.Wrap(ferr.IO, "objectstore.writeAtomic", path, err)
	}
	return nil
}

// readTagged reads a blob's on-disk bytes including its kind tag.
func (s *Store) readTagged(d Digest) ([]byte, error) {
	path := s.pathFor(d)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferr.Wrap(ferr.NotFound, "objectstore.readTagged", d.String(), err)
		}
		return nil, ferr.Wrap(ferr.IO, "objectstore.readTagged", d.String(), err)
	}
	if len(data) == 0 {
		return nil, ferr.New(ferr.IO, "objectstore.readTagged", d.String()+": empty blob, missing kind tag")
	}
	return data, nil
}

// IsManifest reports whether the stored blob for d is a manifest rather
// than a raw blob.
func (s *Store) IsManifest(d Digest) (bool, error) {
	data, err := s.readTagged(d)
	if err != nil {
		return false, err
	}
	return data[0] == kindManifest, nil
}

// Manifest loads and validates the manifest stored under d. It returns
// ferr.Invalid if the blob exists but is not a manifest.
func (s *Store) Manifest(d Digest) (*Manifest, error) {
	data, err := s.readTagged(d)
	if err != nil {
		return nil, err
	}
	if data[0] != kindManifest {
		return nil, ferr.New(ferr.Invalid, "objectstore.Manifest", d.String()+": not a manifest")
	}
	return decodeManifest(data[1:])
}

// Retrieve reconstructs the full blob addressed by d, following a manifest
// if present and verifying every chunk's digest on the way.
func (s *Store) Retrieve(d Digest) ([]byte, error) {
	data, err := s.readTagged(d)
	if err != nil {
		return nil, err
	}

	switch data[0] {
	case kindRaw:
		return data[1:], nil
	case kindManifest:
		manifest, err := decodeManifest(data[1:])
		if err != nil {
			return nil, err
		}
		return s.reassemble(manifest)
	default:
		return nil, ferr.New(ferr.Invalid, "objectstore.Retrieve", d.String()+": unknown kind tag")
	}
}

func (s *Store) reassemble(m *Manifest) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, m.TotalSize))
	for _, digestStr := range m.Chunks {
		cd, err := Parse(digestStr)
		if err != nil {
			return nil, ferr.Wrap(ferr.Invalid, "objectstore.reassemble", digestStr, err)
		}
		chunk, err := s.readTagged(cd)
		if err != nil {
			return nil, err
		}
		if chunk[0] != kindRaw {
			return nil, ferr.New(ferr.Invalid, "objectstore.reassemble", digestStr+": chunk is not raw")
		}
		got := Sum(chunk[1:])
		if !got.Equal(cd) {
			return nil, ferr.New(ferr.Invalid, "objectstore.reassemble", digestStr+": chunk content does not match its digest")
		}
		buf.Write(chunk[1:])
	}
	if uint64(buf.Len()) != m.TotalSize {
		return nil, ferr.New(ferr.Invalid, "objectstore.reassemble", "reassembled size does not match manifest total_size")
	}
	return buf.Bytes(), nil
}

// RetrieveTo reconstructs the blob addressed by d and writes it to w.
func (s *Store) RetrieveTo(d Digest, w io.Writer) error {
	data, err := s.Retrieve(d)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	if err != nil {
		return ferr.Wrap(ferr.IO, "objectstore.RetrieveTo", d.String(), err)
	}
	return nil
}

// OpenChunk returns the raw bytes for a single chunk digest, without
// following manifests. Used by the sync engine to serve individual chunk
// requests.
func (s *Store) OpenChunk(d Digest) ([]byte, error) {
	data, err := s.readTagged(d)
	if err != nil {
		return nil, err
	}
	if data[0] != kindRaw {
		return nil, ferr.New(ferr.Invalid, "objectstore.OpenChunk", d.String()+": not a raw chunk")
	}
	return data[1:], nil
}

// TaggedBytes returns a digest's on-disk bytes verbatim, kind tag included,
// so the sync engine can ship one object over the wire (whether it is a raw
// chunk or a manifest) without reassembling or interpreting it.
func (s *Store) TaggedBytes(d Digest) ([]byte, error) {
	return s.readTagged(d)
}

// PutTagged writes tagged bytes received from a peer under digest d,
// verifying the content actually hashes to d before it ever reaches disk.
// Unlike StoreRaw/StoreBlob, the caller supplies the digest: it is the one
// the peer claimed the data for, and this is the check that it was honest.
func (s *Store) PutTagged(d Digest, tagged []byte) error {
	if len(tagged) == 0 {
		return ferr.New(ferr.Invalid, "objectstore.PutTagged", d.String()+": empty blob")
	}

	switch tagged[0] {
	case kindRaw:
		if !Sum(tagged[1:]).Equal(d) {
			return ferr.New(ferr.Invalid, "objectstore.PutTagged", d.String()+": content does not match digest")
		}
	case kindManifest:
		if _, err := decodeManifest(tagged[1:]); err != nil {
			return err
		}
		if !Sum(tagged[1:]).Equal(d) {
			return ferr.New(ferr.Invalid, "objectstore.PutTagged", d.String()+": manifest body does not match digest")
		}
	default:
		return ferr.New(ferr.Invalid, "objectstore.PutTagged", d.String()+": unknown kind tag")
	}

	return s.writeAtomic(d, tagged)
}
