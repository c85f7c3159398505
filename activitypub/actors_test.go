package activitypub

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

// actorDocTransport serves the given actor document for every request,
// counting fetches, so resolution runs without any network.
func actorDocTransport(t *testing.T, doc map[string]any, fetches *int) http.RoundTripper {
	t.Helper()
	payload, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to encode actor document: %v", err)
	}
	return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		*fetches++
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{ContentType}},
			Body:       io.NopCloser(bytes.NewReader(payload)),
			Request:    req,
		}, nil
	})
}

func TestGuardURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://remote.example/users/alice", true},
		{"http://remote.example/users/alice", true},
		{"ftp://remote.example/file", false},
		{"https://localhost/users/alice", false},
		{"https://foo.localhost/users/alice", false},
		{"https://127.0.0.1/users/alice", false},
		{"https://10.0.0.8/users/alice", false},
		{"https://192.168.1.1/inbox", false},
		{"https://169.254.169.254/latest/meta-data", false},
		{"https://[::1]/inbox", false},
		{"https://intranet/users/alice", false},
		{"https://203.0.113.10/users/alice", true},
	}
	for _, tt := range tests {
		_, err := guardURL(tt.url)
		if (err == nil) != tt.ok {
			t.Errorf("guardURL(%q) err = %v, want ok=%v", tt.url, err, tt.ok)
		}
	}
}

func TestResolveActorFromFreshCache(t *testing.T) {
	f := newTestFederation(t)
	seeded := seedRemoteActor(t, f, "https://remote.example/users/bob")

	// A fresh cache entry is served without any network fetch; an attempted
	// fetch would fail here since remote.example does not resolve.
	resolved, err := f.ResolveActor("https://remote.example/users/bob", false)
	if err != nil {
		t.Fatalf("ResolveActor failed: %v", err)
	}
	if resolved.Id != seeded.Id {
		t.Error("Expected the cached actor")
	}
}

func TestResolveActorStripsKeyFragment(t *testing.T) {
	f := newTestFederation(t)
	seeded := seedRemoteActor(t, f, "https://remote.example/users/bob")

	resolved, err := f.ResolveActor("https://remote.example/users/bob#main-key", false)
	if err != nil {
		t.Fatalf("ResolveActor failed: %v", err)
	}
	if resolved.Id != seeded.Id {
		t.Error("keyId should resolve to the same actor")
	}
}

func TestResolveActorRefusesBlockedHost(t *testing.T) {
	f := newTestFederation(t)
	f.conf.Conf.BlockedDomains = "remote.example"
	seedRemoteActor(t, f, "https://remote.example/users/bob")

	if _, err := f.ResolveActor("https://remote.example/users/bob", false); err == nil {
		t.Error("Expected refusal for blocked host even with cache entry")
	}
}

func TestResolveActorRefusesLocalURI(t *testing.T) {
	f := newTestFederation(t)
	if _, err := f.ResolveActor("https://burrow.example/users/alice", false); err == nil {
		t.Error("Expected refusal for local URI")
	}
}

func TestResolveActorAliasedDocumentId(t *testing.T) {
	f := newTestFederation(t)
	seeded := seedRemoteActor(t, f, remoteBob)

	alias := "https://remote.example/@bob"
	var fetches int
	f.client.Transport = actorDocTransport(t, map[string]any{
		"id":                remoteBob,
		"type":              "Person",
		"preferredUsername": "bob",
		"inbox":             remoteBob + "/inbox",
	}, &fetches)

	// The alias misses the cache and fetches, but the document declares the
	// canonical id, so the existing row is refreshed rather than duplicated.
	resolved, err := f.ResolveActor(alias, false)
	if err != nil {
		t.Fatalf("ResolveActor failed: %v", err)
	}
	if resolved.ActorURI != remoteBob {
		t.Errorf("Resolved actor URI = %s, want %s", resolved.ActorURI, remoteBob)
	}
	if resolved.Id != seeded.Id {
		t.Error("Expected the alias to merge with the existing canonical row")
	}
	if fetches != 1 {
		t.Fatalf("Expected 1 fetch, got %d", fetches)
	}

	again, err := f.ResolveActor(alias, false)
	if err != nil {
		t.Fatalf("Second ResolveActor failed: %v", err)
	}
	if again.Id != seeded.Id {
		t.Error("Expected the cached canonical row")
	}
	if fetches != 1 {
		t.Errorf("Alias should resolve from cache, got %d fetches", fetches)
	}
}

func TestResolveActorServesStaleCacheOnFetchFailure(t *testing.T) {
	f := newTestFederation(t)
	seeded := seedRemoteActor(t, f, "https://remote.example/users/bob")

	// Age the cache entry past the TTL. The refresh fetch fails (the host
	// does not exist), so the stale copy is served.
	seededCopy := *seeded
	seededCopy.LastFetchedAt = time.Now().Add(-48 * time.Hour)
	if err := f.store.UpsertRemoteAccount(&seededCopy); err != nil {
		t.Fatalf("Failed to age cache entry: %v", err)
	}

	resolved, err := f.ResolveActor("https://remote.example/users/bob", false)
	if err != nil {
		t.Fatalf("Expected stale cache fallback, got error: %v", err)
	}
	if resolved.Id != seeded.Id {
		t.Error("Expected the stale cached actor")
	}
}
