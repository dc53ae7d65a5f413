package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"
)

func TestParsePeerSpecValid(t *testing.T) {
	signingPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	ka := make([]byte, 32)
	for i := range ka {
		ka[i] = byte(i)
	}

	raw := "127.0.0.1:9000," + hex.EncodeToString(signingPub) + "," + hex.EncodeToString(ka)
	spec, err := parsePeerSpec(raw)
	if err != nil {
		t.Fatalf("parsePeerSpec: %v", err)
	}
	if spec.addr != "127.0.0.1:9000" {
		t.Errorf("addr = %q, want 127.0.0.1:9000", spec.addr)
	}
	if !spec.signingKey.Equal(signingPub) {
		t.Errorf("signingKey mismatch")
	}
	if !strings.EqualFold(hex.EncodeToString(spec.keyAgreement), hex.EncodeToString(ka)) {
		t.Errorf("keyAgreement mismatch")
	}
}

func TestParsePeerSpecWrongFieldCount(t *testing.T) {
	if _, err := parsePeerSpec("127.0.0.1:9000,deadbeef"); err == nil {
		t.Fatal("expected error for missing field")
	}
	if _, err := parsePeerSpec("127.0.0.1:9000,aa,bb,cc"); err == nil {
		t.Fatal("expected error for extra field")
	}
}

func TestParsePeerSpecBadSigningKey(t *testing.T) {
	ka := hex.EncodeToString(make([]byte, 32))
	if _, err := parsePeerSpec("addr,not-hex,"+ka); err == nil {
		t.Fatal("expected error for non-hex signing key")
	}
	if _, err := parsePeerSpec("addr,aabb,"+ka); err == nil {
		t.Fatal("expected error for short signing key")
	}
}

func TestParsePeerSpecBadKeyAgreementKey(t *testing.T) {
	signingPub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signingHex := hex.EncodeToString(signingPub)

	if _, err := parsePeerSpec("addr," + signingHex + ",zz"); err == nil {
		t.Fatal("expected error for non-hex key-agreement key")
	}
	if _, err := parsePeerSpec("addr," + signingHex + ",aabb"); err == nil {
		t.Fatal("expected error for short key-agreement key")
	}
}
