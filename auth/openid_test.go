package auth

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestOpenIDClient_LoginURL(t *testing.T) {
	c := NewOpenIDClient(OpenIDConfig{
		ProviderBaseURL: "https://fishpi.cn",
		ReturnURL:       "https://undercover.example.com/auth/callback",
		Realm:           "https://undercover.example.com",
	})

	loginURL, err := c.LoginURL("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("login url did not parse: %v", err)
	}
	q := parsed.Query()
	if q.Get("openid.mode") != "checkid_setup" {
		t.Errorf("expected checkid_setup mode, got %q", q.Get("openid.mode"))
	}
	if q.Get("openid.return_to") != "https://undercover.example.com/auth/callback" {
		t.Errorf("unexpected return_to: %q", q.Get("openid.return_to"))
	}
	if !strings.HasPrefix(loginURL, "https://fishpi.cn/openid/login") {
		t.Errorf("expected login url on provider host, got %q", loginURL)
	}
}

func TestOpenIDClient_LoginURLCarriesCallbackURL(t *testing.T) {
	c := NewOpenIDClient(OpenIDConfig{
		ProviderBaseURL: "https://fishpi.cn",
		ReturnURL:       "https://undercover.example.com/auth/callback",
		Realm:           "https://undercover.example.com",
	})

	loginURL, err := c.LoginURL("https://app.example.com/lobby")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("login url did not parse: %v", err)
	}
	returnTo, err := url.Parse(parsed.Query().Get("openid.return_to"))
	if err != nil {
		t.Fatalf("return_to did not parse: %v", err)
	}
	if got := returnTo.Query().Get("callback_url"); got != "https://app.example.com/lobby" {
		t.Errorf("expected callback_url round-tripped through return_to, got %q", got)
	}
}

func TestOpenIDClient_LoginURLRejectsNonHTTPSReturn(t *testing.T) {
	c := NewOpenIDClient(OpenIDConfig{
		ProviderBaseURL: "https://fishpi.cn",
		ReturnURL:       "http://undercover.example.com/auth/callback",
		Realm:           "https://undercover.example.com",
	})
	if _, err := c.LoginURL(""); err == nil {
		t.Fatal("expected error for non-https return_to")
	}
}

func TestOpenIDClient_LoginURLRejectsRealmNotPrefix(t *testing.T) {
	c := NewOpenIDClient(OpenIDConfig{
		ProviderBaseURL: "https://fishpi.cn",
		ReturnURL:       "https://other.example.com/auth/callback",
		Realm:           "https://undercover.example.com",
	})
	if _, err := c.LoginURL(""); err == nil {
		t.Fatal("expected error when realm is not a prefix of return_to")
	}
}

func TestNonceIsFresh(t *testing.T) {
	fresh := time.Now().UTC().Format("2006-01-02T15:04:05Z") + "abc123"
	if !nonceIsFresh(fresh, 5*time.Minute) {
		t.Error("expected a just-minted nonce to be fresh")
	}

	stale := time.Now().Add(-time.Hour).UTC().Format("2006-01-02T15:04:05Z") + "abc123"
	if nonceIsFresh(stale, 5*time.Minute) {
		t.Error("expected an hour-old nonce to be stale")
	}
}

func TestOpenIDClient_VerifyCallbackRejectsWrongMode(t *testing.T) {
	c := NewOpenIDClient(OpenIDConfig{ProviderBaseURL: "https://fishpi.cn"})
	params := url.Values{"openid.mode": {"cancel"}}
	if _, err := c.VerifyCallback(params); err == nil {
		t.Fatal("expected error for non id_res mode")
	}
}
