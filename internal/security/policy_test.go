package security

import "testing"

func TestPolicyAllowAll(t *testing.T) {
	p, err := Compile([]string{"*"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Allows("https://anything.example") {
		t.Error("expected wildcard policy to allow any origin")
	}
}

func TestPolicyExactMatch(t *testing.T) {
	p, err := Compile([]string{"https://app.acme.com"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Allows("https://app.acme.com") {
		t.Error("expected exact match to be allowed")
	}
	if p.Allows("https://evil.com") {
		t.Error("expected non-matching origin to be denied")
	}
}

func TestPolicyWildcardSubdomain(t *testing.T) {
	p, err := Compile([]string{"*.acme.com"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Allows("tenant1.acme.com") {
		t.Error("expected subdomain to match wildcard")
	}
	if p.Allows("acme.com.evil.org") {
		t.Error("expected lookalike domain to be denied")
	}
}

func TestPolicyRegex(t *testing.T) {
	p, err := Compile([]string{`re:^https://[a-z]+\.acme\.com$`})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !p.Allows("https://staging.acme.com") {
		t.Error("expected regex pattern to match")
	}
	if p.Allows("http://staging.acme.com") {
		t.Error("expected scheme mismatch to be denied")
	}
}

func TestPolicyInvalidRegex(t *testing.T) {
	if _, err := Compile([]string{"re:("}); err == nil {
		t.Error("expected invalid regex to fail compilation")
	}
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	var p *Policy
	if p.Allows("https://anything.example") {
		t.Error("expected nil policy to deny everything")
	}
}
