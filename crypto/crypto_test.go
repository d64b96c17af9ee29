package crypto

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewAESEncryptor(testKey(t))
	if err != nil {
		t.Fatalf("NewAESEncryptor: %v", err)
	}
	plaintext := []byte("oauth-refresh-token-value")
	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext contains the plaintext")
	}
	got, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip = %q, want %q", got, plaintext)
	}
}

func TestEncryptProducesUniqueNonces(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	a, _ := enc.Encrypt([]byte("same input"))
	b, _ := enc.Encrypt([]byte("same input"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext are identical")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	ciphertext, _ := enc.Encrypt([]byte("secret"))
	ciphertext[len(ciphertext)-1] ^= 0x01
	if _, err := enc.Decrypt(ciphertext); err == nil {
		t.Error("tampered ciphertext decrypted without error")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc1, _ := NewAESEncryptor(testKey(t))
	enc2, _ := NewAESEncryptor(testKey(t))
	ciphertext, _ := enc1.Encrypt([]byte("secret"))
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("wrong key decrypted without error")
	}
}

func TestNewAESEncryptorValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"not base64", "!!!not-base64!!!"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAESEncryptor(tt.key); err == nil {
				t.Errorf("NewAESEncryptor(%q) accepted an invalid key", tt.key)
			}
		})
	}
}

func TestStringHelpersEmptyPassthrough(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	if s, err := EncryptString(enc, ""); err != nil || s != "" {
		t.Errorf("EncryptString empty = %q, %v", s, err)
	}
	if s, err := DecryptString(enc, ""); err != nil || s != "" {
		t.Errorf("DecryptString empty = %q, %v", s, err)
	}
}

func TestStringHelpersRoundTrip(t *testing.T) {
	enc, _ := NewAESEncryptor(testKey(t))
	stored, err := EncryptString(enc, "cookie-session-payload")
	if err != nil {
		t.Fatalf("EncryptString: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(stored); err != nil {
		t.Errorf("stored value is not base64: %v", err)
	}
	got, err := DecryptString(enc, stored)
	if err != nil || got != "cookie-session-payload" {
		t.Errorf("DecryptString = %q, %v", got, err)
	}
}
