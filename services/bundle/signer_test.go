package bundle

import (
	"strings"
	"testing"

	"filippo.io/age"
)

func newTestIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return identity
}

func TestNewSignerRequiresKey(t *testing.T) {
	if _, err := NewSigner("", ""); err == nil {
		t.Fatal("expected error when no key material is provided")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	identity := newTestIdentity(t)
	signer, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	payload := []byte("manifest payload")
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := signer.Verify(payload, sig, signer.PublicKeyBase64()); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if err := signer.Verify([]byte("tampered payload"), sig, signer.PublicKeyBase64()); err == nil {
		t.Fatal("expected verification failure for tampered payload")
	}
}

func TestVerifyWithPublicKeyOnly(t *testing.T) {
	identity := newTestIdentity(t)
	signingSigner, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	payload := []byte("payload")
	sig, err := signingSigner.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier, err := NewSigner("", signingSigner.PublicKeyBase64())
	if err != nil {
		t.Fatalf("NewSigner (public only): %v", err)
	}

	if err := verifier.Verify(payload, sig, ""); err != nil {
		t.Fatalf("Verify with configured public key: %v", err)
	}

	if _, err := verifier.Sign(payload); err == nil {
		t.Fatal("expected Sign to fail without a private key")
	}
}

func TestVerifyRejectsUnexpectedManifestKey(t *testing.T) {
	identity := newTestIdentity(t)
	signer, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	other := newTestIdentity(t)
	otherSigner, err := NewSigner(other.String(), "")
	if err != nil {
		t.Fatalf("NewSigner (other): %v", err)
	}

	payload := []byte("payload")
	sig, err := otherSigner.Sign(payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	err = signer.Verify(payload, sig, otherSigner.PublicKeyBase64())
	if err == nil {
		t.Fatal("expected rejection of manifest signed by a different key")
	}
	if !strings.Contains(err.Error(), "unexpected key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSignerRejectsMismatchedPair(t *testing.T) {
	identity := newTestIdentity(t)
	other := newTestIdentity(t)

	otherSigner, err := NewSigner(other.String(), "")
	if err != nil {
		t.Fatalf("NewSigner (other): %v", err)
	}

	if _, err := NewSigner(identity.String(), otherSigner.PublicKeyBase64()); err == nil {
		t.Fatal("expected mismatched key pair to be rejected")
	}
}

func TestRecipientMatchesIdentity(t *testing.T) {
	identity := newTestIdentity(t)
	signer, err := NewSigner(identity.String(), "")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	if got, want := signer.Recipient(), identity.Recipient().String(); got != want {
		t.Fatalf("Recipient() = %q, want %q", got, want)
	}
}
