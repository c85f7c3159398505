package activitypub

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/burrowhq/burrow/db"
	"github.com/burrowhq/burrow/domain"
	"github.com/burrowhq/burrow/util"
	"github.com/google/uuid"
)

func newTestFederation(t *testing.T) *Federation {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"), util.NopLogger())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conf := &util.AppConfig{}
	conf.Conf.Domain = "burrow.example"
	conf.Conf.KeySecret = "test-secret"
	conf.Conf.FollowMode = "auto"

	f := New(store, conf, util.NopLogger())
	// Delivery attempts are driven explicitly in tests.
	f.deliverNow = func() {}
	return f
}

func seedAccount(t *testing.T, f *Federation, username string) *domain.LocalRecipient {
	t.Helper()
	acc := &domain.Account{
		Id:        uuid.New(),
		Username:  username,
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateAccount(acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return &domain.LocalRecipient{Id: acc.Id, Kind: domain.ActorPerson, Name: acc.Username}
}

func seedCommunity(t *testing.T, f *Federation, name string) *domain.LocalRecipient {
	t.Helper()
	community := &domain.Community{
		Id:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := f.store.CreateCommunity(community); err != nil {
		t.Fatalf("Failed to create community: %v", err)
	}
	return &domain.LocalRecipient{Id: community.Id, Kind: domain.ActorGroup, Name: community.Name}
}

func seedRemoteActor(t *testing.T, f *Federation, actorURI string) *domain.RemoteAccount {
	t.Helper()
	remote := &domain.RemoteAccount{
		Id:            uuid.New(),
		Username:      "remote",
		Domain:        "remote.example",
		ActorURI:      actorURI,
		Kind:          domain.ActorPerson,
		InboxURI:      actorURI + "/inbox",
		PublicKeyId:   actorURI + "#main-key",
		LastFetchedAt: time.Now(),
	}
	if err := f.store.UpsertRemoteAccount(remote); err != nil {
		t.Fatalf("Failed to seed remote actor: %v", err)
	}
	err, stored := f.store.ReadRemoteAccountByURI(actorURI)
	if err != nil || stored == nil {
		t.Fatalf("Failed to read back seeded actor: %v", err)
	}
	return stored
}

func TestLocalActorURI(t *testing.T) {
	f := newTestFederation(t)

	person := f.LocalActorURI(domain.ActorPerson, "alice")
	if person != "https://burrow.example/users/alice" {
		t.Errorf("Unexpected person URI: %s", person)
	}

	group := f.LocalActorURI(domain.ActorGroup, "golang")
	if group != "https://burrow.example/c/golang" {
		t.Errorf("Unexpected group URI: %s", group)
	}
}

func TestIsLocalURI(t *testing.T) {
	f := newTestFederation(t)

	tests := []struct {
		uri  string
		want bool
	}{
		{"https://burrow.example/users/alice", true},
		{"https://BURROW.EXAMPLE/users/alice", true},
		{"https://remote.example/users/bob", false},
		{"not a url at all://", false},
	}
	for _, tt := range tests {
		if got := f.IsLocalURI(tt.uri); got != tt.want {
			t.Errorf("IsLocalURI(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestLocalRecipientForURI(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")
	golang := seedCommunity(t, f, "golang")

	tests := []struct {
		uri    string
		wantId uuid.UUID
	}{
		{"https://burrow.example/users/alice", alice.Id},
		{"https://burrow.example/users/alice/followers", alice.Id},
		{"https://burrow.example/users/alice/inbox", alice.Id},
		{"https://burrow.example/c/golang", golang.Id},
	}
	for _, tt := range tests {
		got := f.LocalRecipientForURI(tt.uri)
		if got == nil {
			t.Errorf("LocalRecipientForURI(%q) = nil", tt.uri)
			continue
		}
		if got.Id != tt.wantId {
			t.Errorf("LocalRecipientForURI(%q) resolved wrong recipient", tt.uri)
		}
	}

	if f.LocalRecipientForURI("https://burrow.example/users/nobody") != nil {
		t.Error("Expected nil for unknown user")
	}
	if f.LocalRecipientForURI("https://remote.example/users/alice") != nil {
		t.Error("Expected nil for remote URI")
	}
}

func TestEnsureKeyPairCreatesOnce(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	first, err := f.PublicKeyPem(alice.Id)
	if err != nil {
		t.Fatalf("PublicKeyPem failed: %v", err)
	}
	second, err := f.PublicKeyPem(alice.Id)
	if err != nil {
		t.Fatalf("PublicKeyPem failed on second call: %v", err)
	}
	if first != second {
		t.Error("Expected the same key pair on repeated calls")
	}

	key, err := f.signingKey(alice.Id)
	if err != nil {
		t.Fatalf("signingKey failed: %v", err)
	}
	if key == nil {
		t.Fatal("signingKey returned nil")
	}
}

func TestEnsureKeyPairReencryptsLegacyKey(t *testing.T) {
	f := newTestFederation(t)
	alice := seedAccount(t, f, "alice")

	pair, err := GeneratePemKeypair()
	if err != nil {
		t.Fatalf("GeneratePemKeypair failed: %v", err)
	}
	// Store the private key as plaintext PEM, the pre-encryption format.
	err = f.store.UpsertKeyPair(&domain.KeyPair{
		OwnerId:             alice.Id,
		PublicKeyPem:        pair.Public,
		EncryptedPrivateKey: pair.Private,
		CreatedAt:           time.Now(),
	})
	if err != nil {
		t.Fatalf("UpsertKeyPair failed: %v", err)
	}

	if _, err := f.signingKey(alice.Id); err != nil {
		t.Fatalf("signingKey failed on legacy key: %v", err)
	}

	err, stored := f.store.ReadKeyPairByOwner(alice.Id)
	if err != nil || stored == nil {
		t.Fatalf("Failed to read key pair back: %v", err)
	}
	if IsLegacyPlaintext(stored.EncryptedPrivateKey) {
		t.Error("Expected legacy key to be re-encrypted after first use")
	}
	if stored.PublicKeyPem != pair.Public {
		t.Error("Public key should survive re-encryption")
	}
}
