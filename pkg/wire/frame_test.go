package wire

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/faiproject/fai/pkg/constants"
)

func TestBaseFrameSignAndVerify(t *testing.T) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	frame := NewBaseFrame(constants.KindPing, "test-peer", 1, &PingBody{
		Token: []byte("testtoken"),
	})

	if err := frame.Sign(privateKey); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := frame.Verify(publicKey); err != nil {
		t.Errorf("Verify failed: %v", err)
	}

	originalSeq := frame.Seq
	frame.Seq = 999
	if err := frame.Verify(publicKey); err == nil {
		t.Error("expected verification to fail after modification")
	}

	frame.Seq = originalSeq
	if err := frame.Verify(publicKey); err != nil {
		t.Errorf("Verify failed after restoration: %v", err)
	}
}

func TestBaseFrameMarshalUnmarshal(t *testing.T) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	original := NewBaseFrame(constants.KindChunkRequest, "test-peer", 42, &ChunkRequestBody{
		Digest: "abc123",
	})

	if err := original.Sign(privateKey); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded BaseFrame
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.V != original.V {
		t.Errorf("version mismatch: %d != %d", decoded.V, original.V)
	}
	if decoded.Kind != original.Kind {
		t.Errorf("kind mismatch: %d != %d", decoded.Kind, original.Kind)
	}
	if decoded.From != original.From {
		t.Errorf("from mismatch: %s != %s", decoded.From, original.From)
	}
	if decoded.Seq != original.Seq {
		t.Errorf("seq mismatch: %d != %d", decoded.Seq, original.Seq)
	}
	if decoded.TS != original.TS {
		t.Errorf("ts mismatch: %d != %d", decoded.TS, original.TS)
	}
	if len(decoded.Sig) != len(original.Sig) {
		t.Fatalf("signature length mismatch: %d != %d", len(decoded.Sig), len(original.Sig))
	}
	for i, b := range original.Sig {
		if decoded.Sig[i] != b {
			t.Errorf("signature byte %d mismatch: %02x != %02x", i, decoded.Sig[i], b)
		}
	}
}

func TestBaseFrameValidate(t *testing.T) {
	tests := []struct {
		name      string
		frame     *BaseFrame
		wantError bool
		errorCode uint16
	}{
		{
			name: "valid_frame",
			frame: &BaseFrame{
				V:    constants.ProtocolVersion,
				Kind: constants.KindPing,
				From: "test-peer",
				Seq:  1,
				TS:   uint64(time.Now().UnixMilli()),
				Body: &PingBody{Token: []byte("test")},
				Sig:  []byte("fake-signature"),
			},
			wantError: false,
		},
		{
			name: "wrong_version",
			frame: &BaseFrame{
				V:    99,
				Kind: constants.KindPing,
				From: "test-peer",
				Seq:  1,
				TS:   uint64(time.Now().UnixMilli()),
				Body: &PingBody{Token: []byte("test")},
				Sig:  []byte("fake-signature"),
			},
			wantError: true,
			errorCode: constants.ErrorVersionMismatch,
		},
		{
			name: "missing_from",
			frame: &BaseFrame{
				V:    constants.ProtocolVersion,
				Kind: constants.KindPing,
				From: "",
				Seq:  1,
				TS:   uint64(time.Now().UnixMilli()),
				Body: &PingBody{Token: []byte("test")},
				Sig:  []byte("fake-signature"),
			},
			wantError: true,
			errorCode: constants.ErrorInvalidSig,
		},
		{
			name: "missing_signature",
			frame: &BaseFrame{
				V:    constants.ProtocolVersion,
				Kind: constants.KindPing,
				From: "test-peer",
				Seq:  1,
				TS:   uint64(time.Now().UnixMilli()),
				Body: &PingBody{Token: []byte("test")},
				Sig:  nil,
			},
			wantError: true,
			errorCode: constants.ErrorInvalidSig,
		},
		{
			name: "timestamp_too_far_future",
			frame: &BaseFrame{
				V:    constants.ProtocolVersion,
				Kind: constants.KindPing,
				From: "test-peer",
				Seq:  1,
				TS:   uint64(time.Now().Add(10 * time.Minute).UnixMilli()),
				Body: &PingBody{Token: []byte("test")},
				Sig:  []byte("fake-signature"),
			},
			wantError: true,
			errorCode: constants.ErrorVersionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantError {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				wireErr, ok := err.(*Error)
				if !ok {
					t.Fatalf("expected *wire.Error, got %T", err)
				}
				if wireErr.Code != tt.errorCode {
					t.Errorf("expected error code %d, got %d", tt.errorCode, wireErr.Code)
				}
			} else if err != nil {
				t.Errorf("expected no validation error, got: %v", err)
			}
		})
	}
}

func TestFrameHelpers(t *testing.T) {
	pingFrame := NewPingFrame("test-peer", 1, []byte("testtoken"))
	if pingFrame.Kind != constants.KindPing {
		t.Errorf("expected PING kind %d, got %d", constants.KindPing, pingFrame.Kind)
	}
	if !pingFrame.IsKind(constants.KindPing) {
		t.Error("IsKind should return true for PING frame")
	}

	pongFrame := NewPongFrame("test-peer", 2, []byte("testtoken"))
	if pongFrame.Kind != constants.KindPong {
		t.Errorf("expected PONG kind %d, got %d", constants.KindPong, pongFrame.Kind)
	}

	chunkReq := NewChunkRequestFrame("test-peer", 3, "deadbeef")
	if chunkReq.Kind != constants.KindChunkRequest {
		t.Errorf("expected CHUNK_REQUEST kind %d, got %d", constants.KindChunkRequest, chunkReq.Kind)
	}

	commitReq := NewCommitRequestFrame("test-peer", 4, []string{"h1"}, []string{"p1"})
	if commitReq.Kind != constants.KindCommitRequest {
		t.Errorf("expected COMMIT_REQUEST kind %d, got %d", constants.KindCommitRequest, commitReq.Kind)
	}

	now := time.Now()
	frame := NewBaseFrame(constants.KindPing, "test", 1, nil)
	frameTime := frame.Timestamp()
	if frameTime.Sub(now).Abs() > time.Second {
		t.Errorf("frame timestamp %v too far from now %v", frameTime, now)
	}
}

func BenchmarkBaseFrameSign(b *testing.B) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("GenerateKey: %v", err)
	}

	frame := NewBaseFrame(constants.KindPing, "test-peer", 1, &PingBody{
		Token: []byte("testtoken"),
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := frame.Sign(privateKey); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkBaseFrameVerify(b *testing.B) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		b.Fatalf("GenerateKey: %v", err)
	}

	frame := NewBaseFrame(constants.KindPing, "test-peer", 1, &PingBody{
		Token: []byte("testtoken"),
	})

	if err := frame.Sign(privateKey); err != nil {
		b.Fatalf("Sign: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := frame.Verify(publicKey); err != nil {
			b.Fatal(err)
		}
	}
}
