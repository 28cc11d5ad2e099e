package vault

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	v := New("correct horse battery staple")

	plaintext := []byte("sk-ant-secret-key")
	sealed, err := v.Seal(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed blob leaks the plaintext")
	}

	opened, err := v.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round-trip mismatch: %q", opened)
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	v := New("passphrase")

	a, err := v.Seal([]byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := v.Seal([]byte("same input"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext must differ")
	}
}

func TestWrongPassphraseFails(t *testing.T) {
	sealed, err := New("right").SealString("secret")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := New("wrong").OpenString(sealed); err == nil {
		t.Fatal("wrong passphrase must not decrypt")
	}
}

func TestSamePassphraseSurvivesRestart(t *testing.T) {
	// Sealing and opening use independently constructed vaults, as they
	// would across process restarts.
	sealed, err := New("stable").SealString("value")
	if err != nil {
		t.Fatal(err)
	}

	got, err := New("stable").OpenString(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestOpenRejectsTruncatedBlob(t *testing.T) {
	v := New("p")
	if _, err := v.Open([]byte{0x01, 0x02}); err == nil {
		t.Fatal("truncated blob must fail")
	}
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	v := New("p")
	sealed, err := v.Seal([]byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := v.Open(sealed); err == nil {
		t.Fatal("tampered blob must fail authentication")
	}
}
