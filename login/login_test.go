package login

import (
	"strings"
	"testing"
	"time"
)

func TestSignAndParseToken(t *testing.T) {
	token, exp, err := signToken("a@b.c", time.Hour, false)
	if err != nil {
		t.Fatal(err)
	}
	if exp <= time.Now().Unix() {
		t.Fatalf("expiry %d is not in the future", exp)
	}
	tp, ok := parseToken(token)
	if !ok {
		t.Fatal("freshly signed token must parse")
	}
	if tp.Email != "a@b.c" {
		t.Fatalf("Email = %q", tp.Email)
	}
	if tp.Rem {
		t.Fatal("remember flag should be false")
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	token, _, _ := signToken("a@b.c", time.Hour, false)
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, ok := parseToken(tampered); ok {
		t.Fatal("tampered payload must not parse")
	}
	if _, ok := parseToken("garbage"); ok {
		t.Fatal("malformed token must not parse")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, _, _ := signToken("a@b.c", -time.Minute, false)
	if _, ok := parseToken(token); ok {
		t.Fatal("expired token must not parse")
	}
}

func TestBlacklistedTokenRejected(t *testing.T) {
	token, exp, _ := signToken("a@b.c", time.Hour, false)
	blacklistMu.Lock()
	blacklist[token] = exp
	blacklistMu.Unlock()
	t.Cleanup(func() {
		blacklistMu.Lock()
		delete(blacklist, token)
		blacklistMu.Unlock()
	})
	if _, ok := parseToken(token); ok {
		t.Fatal("blacklisted token must not parse")
	}
}

func TestGetEmailFromToken(t *testing.T) {
	token, _, _ := signToken("user@example.com", time.Hour, true)
	email, ok := GetEmailFromToken(token)
	if !ok || email != "user@example.com" {
		t.Fatalf("GetEmailFromToken = %q, %v", email, ok)
	}
}
