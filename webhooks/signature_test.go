package webhooks_test

import (
	"testing"

	"github.com/repowatch/repowatch/webhooks"
)

func TestSignatureVerifier(t *testing.T) {
	secret := "s3cr3t"
	body := []byte(`{"ref":"refs/heads/main"}`)
	verifier := webhooks.SignatureVerifier{Secret: secret}

	header := webhooks.Sign(secret, body)

	if !verifier.Verify(body, header) {
		t.Fatalf("expected signature round trip to verify")
	}
	if verifier.Verify(body, webhooks.Sign("other-secret", body)) {
		t.Fatalf("expected signature with wrong secret to fail")
	}
	if verifier.Verify([]byte(`{"ref":"refs/heads/dev"}`), header) {
		t.Fatalf("expected signature over different body to fail")
	}
	if verifier.Verify(body, "") {
		t.Fatalf("expected empty header to fail")
	}
	if verifier.Verify(body, "sha256=zzzz") {
		t.Fatalf("expected malformed header to fail")
	}

	// Flip one hex digit.
	tampered := []byte(header)
	if tampered[len(tampered)-1] == 'a' {
		tampered[len(tampered)-1] = 'b'
	} else {
		tampered[len(tampered)-1] = 'a'
	}
	if verifier.Verify(body, string(tampered)) {
		t.Fatalf("expected altered header to fail")
	}
}

func TestSignatureVerifierEmptySecretBypass(t *testing.T) {
	verifier := webhooks.SignatureVerifier{}

	if !verifier.Verify([]byte("anything"), "") {
		t.Fatalf("expected empty secret to accept unsigned delivery")
	}
	if !verifier.Verify([]byte("anything"), "sha256=bogus") {
		t.Fatalf("expected empty secret to accept any header")
	}
}
