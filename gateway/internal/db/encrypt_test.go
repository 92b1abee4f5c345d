package db

import "testing"

func TestMain(m *testing.M) {
	if err := InitEncryption([]byte("01234567890123456789012345678901")); err != nil {
		panic(err)
	}
	m.Run()
}

func TestEncryptedStringRoundTrip(t *testing.T) {
	orig := EncryptedString("super-secret-token")

	stored, err := orig.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	storedStr, ok := stored.(string)
	if !ok {
		t.Fatalf("Value() returned %T, want string", stored)
	}
	if storedStr == string(orig) {
		t.Fatal("Value() returned the plaintext verbatim, want it encrypted")
	}

	var decoded EncryptedString
	if err := decoded.Scan(storedStr); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if decoded != orig {
		t.Fatalf("decoded = %q, want %q", decoded, orig)
	}
}

func TestEncryptedStringEmptyValueSkipsEncryption(t *testing.T) {
	var empty EncryptedString

	stored, err := empty.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if stored != "" {
		t.Fatalf("Value() = %v, want empty string", stored)
	}
}

func TestEncryptedStringScanNil(t *testing.T) {
	var e EncryptedString = "leftover"
	if err := e.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) error: %v", err)
	}
	if e != "" {
		t.Fatalf("e = %q after Scan(nil), want empty", e)
	}
}

func TestEncryptedStringScanRejectsNonString(t *testing.T) {
	var e EncryptedString
	if err := e.Scan(42); err == nil {
		t.Fatal("Scan(42) error = nil, want an error for a non-string value")
	}
}

func TestEncryptedStringScanRejectsCorruptData(t *testing.T) {
	var e EncryptedString
	if err := e.Scan("not-valid-base64-or-ciphertext!!"); err == nil {
		t.Fatal("Scan() on corrupt data, error = nil, want an error")
	}
}

func TestEncryptedStringTwoEncryptionsDiffer(t *testing.T) {
	orig := EncryptedString("same-plaintext")

	a, err := orig.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	b, err := orig.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical ciphertext, want distinct nonces")
	}
}
