package objectstore

import (
	"io"

	"github.com/faiproject/fai/pkg/constants"
	"github.com/faiproject/fai/pkg/ferr"
)

// Chunk is one fixed-size (except possibly the last) slice of a larger
// blob, addressed by the digest of its own bytes.
type Chunk struct {
	Digest Digest
	Data   []byte
	Offset uint64
}

// ChunkReader splits the bytes read from r into constants.ChunkSize pieces.
// An empty input yields a nil slice, not an error.
func ChunkReader(r io.Reader) ([]Chunk, error) {
	var chunks []Chunk
	buf := make([]byte, constants.ChunkSize)
	var offset uint64

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			chunks = append(chunks, Chunk{
				Digest: Sum(data),
				Data:   data,
				Offset: offset,
			})
			offset += uint64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, ferr.Wrap(ferr.IO, "objectstore.ChunkReader", "", err)
		}
	}
	return chunks, nil
}

// ChunkData splits data in memory into constants.ChunkSize pieces.
func ChunkData(data []byte) []Chunk {
	if len(data) == 0 {
		return nil
	}

	chunks := make([]Chunk, 0, (len(data)+constants.ChunkSize-1)/constants.ChunkSize)
	var offset uint64
	for i := 0; i < len(data); i += constants.ChunkSize {
		end := i + constants.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		piece := make([]byte, end-i)
		copy(piece, data[i:end])
		chunks = append(chunks, Chunk{
			Digest: Sum(piece),
			Data:   piece,
			Offset: offset,
		})
		offset += uint64(end - i)
	}
	return chunks
}
