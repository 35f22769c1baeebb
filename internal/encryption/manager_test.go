package encryption

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"carhistory/internal/config"
)

func testManager(secret string) *EncryptionManager {
	cfg := &config.Config{Secret: secret}
	return NewEncryptionManager(cfg, nil)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	em := testManager(strings.Repeat("k", 48))
	plaintext := []byte(`{"vin":"WVWZZZ1JZXW000001","owner_email":"a@b.com"}`)

	payload, err := em.EncryptExport(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if payload.Algorithm != "aes-256-gcm" {
		t.Fatalf("unexpected algorithm %q", payload.Algorithm)
	}
	if payload.KeyID != "derived" {
		t.Fatalf("derived mode must report keyID derived, got %q", payload.KeyID)
	}
	if strings.Contains(payload.Ciphertext, "vin") {
		t.Fatal("ciphertext leaks plaintext")
	}

	got, err := em.DecryptExport(context.Background(), payload)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestDecrypt_WrongSecretFails(t *testing.T) {
	em := testManager(strings.Repeat("k", 48))
	payload, err := em.EncryptExport(context.Background(), []byte("sensitive"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	other := testManager(strings.Repeat("x", 48))
	if _, err := other.DecryptExport(context.Background(), payload); err == nil {
		t.Fatal("decryption with a different server secret must fail")
	}
}

func TestEncrypt_NonceVaries(t *testing.T) {
	em := testManager(strings.Repeat("k", 48))
	a, err := em.EncryptExport(context.Background(), []byte("same plaintext"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := em.EncryptExport(context.Background(), []byte("same plaintext"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Ciphertext == b.Ciphertext {
		t.Fatal("two encryptions of the same plaintext must not produce identical ciphertext")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	em := testManager(strings.Repeat("k", 48))
	payload, err := em.EncryptExport(context.Background(), []byte("sensitive"))
	if err != nil {
		t.Fatal(err)
	}
	payload.Ciphertext = "AAAA" + payload.Ciphertext[4:]
	if _, err := em.DecryptExport(context.Background(), payload); err == nil {
		t.Fatal("tampered ciphertext must not decrypt")
	}
}
