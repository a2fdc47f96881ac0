package authx

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

func jwksBody(t *testing.T, kid string, pub *rsa.PublicKey) []byte {
	t.Helper()
	key, err := jwk.FromRaw(pub)
	if err != nil {
		t.Fatalf("jwk from raw: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		t.Fatalf("add key: %v", err)
	}
	body, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	return body
}

func TestJWKSCacheResolvesKey(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	body := jwksBody(t, "kid-1", &priv.PublicKey)

	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Minute, srv.Client())
	got, err := cache.GetKey(context.Background(), "kid-1")
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	pub, ok := got.(*rsa.PublicKey)
	if !ok || pub.N.Cmp(priv.N) != 0 {
		t.Fatalf("unexpected key material: %T", got)
	}

	// Second lookup within the TTL is served from the cache.
	if _, err := cache.GetKey(context.Background(), "kid-1"); err != nil {
		t.Fatalf("cached get key: %v", err)
	}
	if fetches.Load() != 1 {
		t.Fatalf("expected 1 fetch, got %d", fetches.Load())
	}

	if _, err := cache.GetKey(context.Background(), "nope"); !errors.Is(err, ErrUnknownKID) {
		t.Fatalf("expected ErrUnknownKID, got %v", err)
	}
}

func TestJWKSCacheServesStaleOnRefreshFailure(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	body := jwksBody(t, "kid-1", &priv.PublicKey)

	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cache := NewJWKSCache(srv.URL, time.Nanosecond, srv.Client())
	if _, err := cache.GetKey(context.Background(), "kid-1"); err != nil {
		t.Fatalf("initial get key: %v", err)
	}

	fail.Store(true)
	got, err := cache.GetKey(context.Background(), "kid-1")
	if err != nil {
		t.Fatalf("stale get key: %v", err)
	}
	if _, ok := got.(*rsa.PublicKey); !ok {
		t.Fatalf("unexpected stale key material: %T", got)
	}
}
