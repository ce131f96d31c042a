package playapi

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testServiceAccountJSON builds a valid service-account key blob pointing at
// the given token endpoint.
func testServiceAccountJSON(t *testing.T, tokenURI string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	blob, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"client_email":   "svc@project.iam.gserviceaccount.com",
		"private_key":    string(pemKey),
		"private_key_id": "key-1",
		"token_uri":      tokenURI,
	})
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

// tokenServer is a fake exchange endpoint counting calls.
func tokenServer(t *testing.T, expiresIn int, delay time.Duration) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != jwtBearerGrant {
			t.Errorf("unexpected grant_type %q", got)
		}
		if r.Form.Get("assertion") == "" {
			t.Error("missing assertion")
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%d,"token_type":"Bearer"}`, n, expiresIn)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestCredentials(t *testing.T, tokenURI string) *Credentials {
	t.Helper()
	cred, err := Load(testServiceAccountJSON(t, tokenURI))
	if err != nil {
		t.Fatal(err)
	}
	return NewCredentials(cred)
}

func TestLoad_Malformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":     []byte("not-json"),
		"wrong type":   []byte(`{"type":"authorized_user"}`),
		"missing key":  []byte(`{"type":"service_account","client_email":"a@b.c"}`),
		"bad pem":      []byte(`{"type":"service_account","client_email":"a@b.c","private_key":"garbage"}`),
	}
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(blob)
			var pe *Error
			if !errors.As(err, &pe) || pe.Kind != KindAuth {
				t.Fatalf("expected auth error, got %v", err)
			}
		})
	}
}

func TestToken_ExchangeAndCache(t *testing.T) {
	srv, calls := tokenServer(t, 3600, 0)
	creds := newTestCredentials(t, srv.URL)

	tok, err := creds.Token(context.Background(), ScopeAndroidPublisher)
	if err != nil {
		t.Fatal(err)
	}
	if tok.Value != "tok-1" {
		t.Fatalf("unexpected token %q", tok.Value)
	}
	if !tok.Expiry.After(time.Now().Add(30 * time.Minute)) {
		t.Fatal("expected roughly one hour of life")
	}

	// Second call serves from cache
	tok2, err := creds.Token(context.Background(), ScopeAndroidPublisher)
	if err != nil {
		t.Fatal(err)
	}
	if tok2.Value != "tok-1" {
		t.Fatalf("expected cached token, got %q", tok2.Value)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 exchange call, got %d", calls.Load())
	}
}

func TestToken_PerScopeCache(t *testing.T) {
	srv, calls := tokenServer(t, 3600, 0)
	creds := newTestCredentials(t, srv.URL)

	a, _ := creds.Token(context.Background(), ScopeAndroidPublisher)
	b, err := creds.Token(context.Background(), ScopeReporting)
	if err != nil {
		t.Fatal(err)
	}
	if a.Value == b.Value {
		t.Fatal("scopes must not share tokens")
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 exchange calls, got %d", calls.Load())
	}
}

func TestToken_RefreshWithinMargin(t *testing.T) {
	// Token expires in 30s, inside the 60s safety margin, so every call
	// refreshes.
	srv, calls := tokenServer(t, 30, 0)
	creds := newTestCredentials(t, srv.URL)

	creds.Token(context.Background(), ScopeAndroidPublisher)
	creds.Token(context.Background(), ScopeAndroidPublisher)
	if calls.Load() != 2 {
		t.Fatalf("expected a refresh inside the margin, got %d calls", calls.Load())
	}
}

func TestToken_SingleFlight(t *testing.T) {
	srv, calls := tokenServer(t, 3600, 50*time.Millisecond)
	creds := newTestCredentials(t, srv.URL)

	const n = 10
	var wg sync.WaitGroup
	toks := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := creds.Token(context.Background(), ScopeAndroidPublisher)
			toks[i], errs[i] = tok.Value, err
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 exchange for %d concurrent callers, got %d", n, got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if toks[i] != toks[0] {
			t.Fatalf("caller %d got a different token", i)
		}
	}
}

func TestToken_ExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	creds := newTestCredentials(t, srv.URL)

	_, err := creds.Token(context.Background(), ScopeAndroidPublisher)
	var pe *Error
	if !errors.As(err, &pe) || pe.Kind != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestToken_SharedFailure(t *testing.T) {
	// Waiters on a single-flight refresh share the failure too.
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond)
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	creds := newTestCredentials(t, srv.URL)

	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = creds.Token(context.Background(), ScopeAndroidPublisher)
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 exchange call, got %d", calls.Load())
	}
	for i := 0; i < n; i++ {
		var pe *Error
		if !errors.As(errs[i], &pe) || pe.Kind != KindAuth {
			t.Fatalf("caller %d: expected shared auth error, got %v", i, errs[i])
		}
	}
}
