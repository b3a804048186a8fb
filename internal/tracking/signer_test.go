package tracking

import (
	"regexp"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

func TestNewSignerRejectsShortSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		ok     bool
	}{
		{"empty", "", false},
		{"short", "abc123", false},
		{"31 bytes", strings.Repeat("x", 31), false},
		{"32 bytes", strings.Repeat("x", 32), true},
		{"long", strings.Repeat("x", 64), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSigner(tt.secret)
			if (err == nil) != tt.ok {
				t.Errorf("NewSigner(%d bytes) err = %v, want ok=%v", len(tt.secret), err, tt.ok)
			}
		})
	}
}

func TestGenerateTokenFormat(t *testing.T) {
	s := newTestSigner(t)
	hexRe := regexp.MustCompile(`^[0-9a-f]{64}$`)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := s.GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken: %v", err)
		}
		if !hexRe.MatchString(tok) {
			t.Fatalf("token %q is not 64 lowercase hex chars", tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestSignDeterministic(t *testing.T) {
	s := newTestSigner(t)

	sig1 := s.Sign("tok", "https://example.com")
	sig2 := s.Sign("tok", "https://example.com")
	if sig1 != sig2 {
		t.Errorf("same inputs produced different signatures: %s vs %s", sig1, sig2)
	}

	if s.Sign("tok2", "https://example.com") == sig1 {
		t.Error("changing token did not change signature")
	}
	if s.Sign("tok", "https://example.org") == sig1 {
		t.Error("changing url did not change signature")
	}
}

func TestVerify(t *testing.T) {
	s := newTestSigner(t)
	token := "aabbcc"
	target := "https://example.com/course/42"
	sig := s.Sign(token, target)

	if !s.Verify(token, target, sig) {
		t.Error("valid signature rejected")
	}
	if s.Verify(token, target, "garbage") {
		t.Error("non-hex signature accepted")
	}
	if s.Verify(token, target, "deadbeef") {
		t.Error("wrong signature accepted")
	}
	if s.Verify(token, "https://evil.example.com", sig) {
		t.Error("signature accepted for a different url")
	}
	if s.Verify("other-token", target, sig) {
		t.Error("signature accepted for a different token")
	}
	if s.Verify(token, target, "") {
		t.Error("empty signature accepted")
	}
}

func TestVerifyDifferentSecrets(t *testing.T) {
	s1 := newTestSigner(t)
	s2, err := NewSigner(strings.Repeat("y", 32))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	sig := s1.Sign("tok", "https://example.com")
	if s2.Verify("tok", "https://example.com", sig) {
		t.Error("signature verified under a different secret")
	}
}

func TestUnsubscribeTokens(t *testing.T) {
	s := newTestSigner(t)

	tok := s.SignUnsubscribe("student@example.com", "progress_nudge")
	if !s.VerifyUnsubscribe("student@example.com", "progress_nudge", tok) {
		t.Error("valid unsubscribe token rejected")
	}
	if s.VerifyUnsubscribe("other@example.com", "progress_nudge", tok) {
		t.Error("unsubscribe token accepted for a different email")
	}
	if s.VerifyUnsubscribe("student@example.com", "receipt", tok) {
		t.Error("unsubscribe token accepted for a different email type")
	}

	// Unsubscribe tokens and click signatures live in separate domains.
	if s.Verify("student@example.com", "progress_nudge", tok) {
		t.Error("unsubscribe token verified as a click signature")
	}
}
