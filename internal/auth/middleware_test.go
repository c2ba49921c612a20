package auth

import (
	"testing"
)

func TestParseBearerValid(t *testing.T) {
	user, secret, err := parseBearer("Bearer acme-client:s3cr3t")
	if err != nil {
		t.Fatalf("parseBearer: %v", err)
	}
	if user != "acme-client" || secret != "s3cr3t" {
		t.Errorf("got user=%q secret=%q", user, secret)
	}
}

func TestParseBearerMissingPrefix(t *testing.T) {
	if _, _, err := parseBearer("Basic abc123"); err == nil {
		t.Error("expected error for non-bearer scheme")
	}
}

func TestParseBearerMissingColon(t *testing.T) {
	if _, _, err := parseBearer("Bearer nocolonhere"); err == nil {
		t.Error("expected error for missing colon separator")
	}
}

func TestParseDBTokenPipeDelimited(t *testing.T) {
	user, secret, err := parseDBToken("acme_db_user|s3cr3t")
	if err != nil {
		t.Fatalf("parseDBToken: %v", err)
	}
	if user != "acme_db_user" || secret != "s3cr3t" {
		t.Errorf("got user=%q secret=%q", user, secret)
	}
}

func TestParseDBTokenColonDelimited(t *testing.T) {
	user, secret, err := parseDBToken("acme_db_user:s3cr3t")
	if err != nil {
		t.Fatalf("parseDBToken: %v", err)
	}
	if user != "acme_db_user" || secret != "s3cr3t" {
		t.Errorf("got user=%q secret=%q", user, secret)
	}
}

func TestParseDBTokenRejectsMissingSecret(t *testing.T) {
	if _, _, err := parseDBToken("acme_db_user"); err == nil {
		t.Error("expected error for a token with no delimiter")
	}
}

func TestParseDBTokenRejectsEmptyParts(t *testing.T) {
	if _, _, err := parseDBToken("|s3cr3t"); err == nil {
		t.Error("expected error for an empty user")
	}
	if _, _, err := parseDBToken("acme_db_user|"); err == nil {
		t.Error("expected error for an empty secret")
	}
}
