package keymanager

import "testing"

func TestGenerateSecretIsRandomAndHex(t *testing.T) {
	a, err := generateSecret()
	if err != nil {
		t.Fatalf("generateSecret: %v", err)
	}
	b, err := generateSecret()
	if err != nil {
		t.Fatalf("generateSecret: %v", err)
	}
	if a == b {
		t.Error("expected two generated secrets to differ")
	}
	if len(a) != 64 { // 32 bytes hex-encoded
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
}

func TestFingerprintOfIsDeterministic(t *testing.T) {
	f1 := fingerprintOf("alice", "hash-value")
	f2 := fingerprintOf("alice", "hash-value")
	if f1 != f2 {
		t.Error("expected fingerprintOf to be deterministic")
	}
}

func TestFingerprintOfDiffersByInput(t *testing.T) {
	f1 := fingerprintOf("alice", "hash-value")
	f2 := fingerprintOf("bob", "hash-value")
	if f1 == f2 {
		t.Error("expected different usernames to produce different fingerprints")
	}
}
