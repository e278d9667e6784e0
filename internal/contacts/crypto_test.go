package contacts

import (
	"bytes"
	"errors"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	cipher, err := NewCipher("unit-test-pepper")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	plaintext := []byte(`[{"name":"Mom","address":"0xabc"}]`)
	sealed, err := cipher.Encrypt("0xuser", "sig-1", plaintext)
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if bytes.Contains(sealed, []byte("Mom")) {
		t.Fatal("ciphertext must not contain plaintext contact names")
	}

	opened, err := cipher.Decrypt("0xuser", "sig-1", sealed)
	if err != nil {
		t.Fatalf("Decrypt returned error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %s", opened)
	}
}

func TestCipherWrongSignature(t *testing.T) {
	cipher, err := NewCipher("unit-test-pepper")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	sealed, err := cipher.Encrypt("0xuser", "right-sig", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if _, err := cipher.Decrypt("0xuser", "wrong-sig", sealed); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestCipherWrongAddress(t *testing.T) {
	cipher, err := NewCipher("unit-test-pepper")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	sealed, err := cipher.Encrypt("0xuser", "sig", []byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if _, err := cipher.Decrypt("0xother", "sig", sealed); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestCipherNonceUnique(t *testing.T) {
	cipher, err := NewCipher("unit-test-pepper")
	if err != nil {
		t.Fatalf("NewCipher returned error: %v", err)
	}

	first, err := cipher.Encrypt("0xuser", "sig", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	second, err := cipher.Encrypt("0xuser", "sig", []byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}
