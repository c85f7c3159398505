package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	actorCacheTTL = 24 * time.Hour
	maxFetchBytes = 10 << 20
)

// actorDocument is the subset of a remote actor document we persist.
type actorDocument struct {
	Id                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		Id           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	Icon struct {
		URL string `json:"url"`
	} `json:"icon"`
}

// guardURL rejects fetch targets that could reach internal infrastructure:
// non-http(s) schemes, bare hostnames without a dot, loopback, private and
// link-local addresses.
func guardURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("refusing non-http url scheme %q", parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("refusing to fetch from host %q", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return nil, fmt.Errorf("refusing to fetch from address %s", host)
		}
	} else if !strings.Contains(host, ".") {
		return nil, fmt.Errorf("refusing to fetch from dotless host %q", host)
	}
	return parsed, nil
}

// ResolveActor returns the remote actor behind uri, from cache when fresh.
// forceRefresh bypasses the cache, used when a signature check fails against
// a possibly rotated key and on actor Update activities.
func (f *Federation) ResolveActor(uri string, forceRefresh bool) (*domain.RemoteAccount, error) {
	// A keyId like .../users/alice#main-key names the same actor.
	uri = strings.Split(uri, "#")[0]

	f.aliasMu.Lock()
	if canonical, ok := f.aliases[uri]; ok {
		uri = canonical
	}
	f.aliasMu.Unlock()

	if f.IsLocalURI(uri) {
		return nil, fmt.Errorf("refusing to resolve local uri %s as remote actor", uri)
	}

	if d := f.gate().Decide(uri); !d.Allowed {
		return nil, fmt.Errorf("federation policy: %s", d.Reason)
	}

	err, cached := f.store.ReadRemoteAccountByURI(uri)
	if err == nil && cached != nil && !forceRefresh && time.Since(cached.LastFetchedAt) < actorCacheTTL {
		return cached, nil
	}

	fetched, fetchErr := f.fetchRemoteActor(uri)
	if fetchErr != nil {
		// Serve a stale cache entry rather than failing outright.
		if cached != nil && !forceRefresh {
			f.log.Debugf("actor refresh failed for %s, serving cached copy: %v", uri, fetchErr)
			return cached, nil
		}
		return nil, fetchErr
	}

	if fetched.ActorURI != uri {
		// The document declared a canonical id other than the URI we asked
		// for. Remember the alias so later lookups hit the cache, and merge
		// with any row already stored under the canonical id.
		f.aliasMu.Lock()
		f.aliases[uri] = fetched.ActorURI
		f.aliasMu.Unlock()
		if readErr, canonical := f.store.ReadRemoteAccountByURI(fetched.ActorURI); readErr == nil && canonical != nil {
			cached = canonical
		}
	}
	if cached != nil {
		fetched.Id = cached.Id
	} else {
		fetched.Id = uuid.New()
	}
	if err := f.store.UpsertRemoteAccount(fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

func (f *Federation) fetchRemoteActor(uri string) (*domain.RemoteAccount, error) {
	target, err := guardURL(uri)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read actor document: %w", err)
	}

	var doc actorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("malformed actor document: %w", err)
	}
	if doc.Id == "" || doc.Type == "" || doc.Inbox == "" {
		return nil, fmt.Errorf("actor document missing required fields")
	}
	// The document must describe an actor on the host we asked, and any
	// embedded key must belong to it. Without this a hostile server could
	// answer a fetch of one actor with another actor's identity or key.
	docURL, err := url.Parse(doc.Id)
	if err != nil || !strings.EqualFold(docURL.Hostname(), target.Hostname()) {
		return nil, fmt.Errorf("actor document id %q does not match fetched host", doc.Id)
	}
	if doc.PublicKey.PublicKeyPem != "" && doc.PublicKey.Owner != "" && doc.PublicKey.Owner != doc.Id {
		return nil, fmt.Errorf("actor public key owner %q does not match actor id", doc.PublicKey.Owner)
	}

	kind := domain.ActorPerson
	if doc.Type == "Group" {
		kind = domain.ActorGroup
	}

	return &domain.RemoteAccount{
		Username:       doc.PreferredUsername,
		Domain:         target.Hostname(),
		ActorURI:       doc.Id,
		Kind:           kind,
		DisplayName:    doc.Name,
		Summary:        SanitizeContent(doc.Summary),
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		OutboxURI:      doc.Outbox,
		PublicKeyId:    doc.PublicKey.Id,
		PublicKeyPem:   doc.PublicKey.PublicKeyPem,
		AvatarURL:      doc.Icon.URL,
		LastFetchedAt:  time.Now(),
	}, nil
}

type webfingerResponse struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		Href string `json:"href"`
	} `json:"links"`
}

// WebfingerLookup resolves "user@remote.example" (with or without a leading
// @) to the actor URI advertised by the remote instance.
func (f *Federation) WebfingerLookup(handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	parts := strings.Split(handle, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid handle %q", handle)
	}
	username, host := parts[0], parts[1]

	if d := f.gate().Decide(host); !d.Allowed {
		return "", fmt.Errorf("federation policy: %s", d.Reason)
	}

	lookup := fmt.Sprintf("https://%s/.well-known/webfinger?resource=acct:%s@%s",
		host, url.QueryEscape(username), host)
	target, err := guardURL(lookup)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/jrd+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webfinger lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("webfinger lookup returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}

	var wf webfingerResponse
	if err := json.Unmarshal(body, &wf); err != nil {
		return "", fmt.Errorf("malformed webfinger response: %w", err)
	}
	for _, link := range wf.Links {
		if link.Rel == "self" && strings.Contains(link.Type, "activity+json") && link.Href != "" {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("no activity+json self link for %s", handle)
}
