package fyersconnect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestAuthCodeURL(t *testing.T) {
	fc := New(Config{AppID: "ABCD-100", SecretID: "s3cret", RedirectURI: "https://app.example.com/callback"})
	raw := fc.AuthCodeURL("xyz")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/generate-authcode") {
		t.Errorf("path = %s, want generate-authcode endpoint", u.Path)
	}
	q := u.Query()
	if q.Get("client_id") != "ABCD-100" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "https://app.example.com/callback" {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
	if q.Get("response_type") != "code" || q.Get("state") != "xyz" {
		t.Errorf("query = %v", q)
	}
}

func TestHistory_ParsesCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("resolution"); got != "5" {
			t.Errorf("resolution = %q, want 5", got)
		}
		if got := r.Header.Get("Authorization"); got != "ABCD-100:tok" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"s":"ok","candles":[[1767410100,100,101,99,100.5,2500],[1767410400,100.5,102,100,101.5,1800]]}`))
	}))
	defer srv.Close()

	fc := New(Config{AppID: "ABCD-100", SecretID: "s", APIRoot: srv.URL, AccessToken: "tok"})
	candles, err := fc.History(context.Background(), "NSE:SBIN-EQ", "5", 1767400000, 1767420000)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	if candles[0][0] != 1767410100 || candles[0][4] != 100.5 || candles[1][5] != 1800 {
		t.Errorf("unexpected tuples: %v", candles)
	}
}

func TestErrorTranslation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"s":"error","code":-16,"message":"Could not authenticate the user"}`))
	}))
	defer srv.Close()

	expired := false
	fc := New(Config{AppID: "A", SecretID: "s", APIRoot: srv.URL, AccessToken: "stale"})
	fc.SessionExpiryHook = func() { expired = true }

	_, err := fc.Quotes(context.Background(), "NSE:SBIN-EQ")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != -16 {
		t.Errorf("code = %d, want -16", apiErr.Code)
	}
	if !expired {
		t.Error("SessionExpiryHook not fired on code -16")
	}
}
