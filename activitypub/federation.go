package activitypub

import (
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/burrowhq/burrow/db"
	"github.com/burrowhq/burrow/domain"
	"github.com/burrowhq/burrow/util"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	fetchTimeout = 10 * time.Second
	userAgent    = "burrow/1.0 ActivityPub"
)

// Federation is the engine driving both directions of the pipeline:
// inbound admission and processing, outbound queuing and delivery.
type Federation struct {
	store  db.Store
	conf   *util.AppConfig
	log    *zap.SugaredLogger
	keys   *KeyProvider
	client *http.Client

	// aliases maps requested actor URIs to the canonical id their
	// document declared, so later lookups hit the cache row.
	aliasMu sync.Mutex
	aliases map[string]string

	// deliverNow triggers an out-of-band delivery pass after a small
	// fan-out, so direct messages don't wait for the next worker tick.
	deliverNow func()
}

func New(store db.Store, conf *util.AppConfig, log *zap.SugaredLogger) *Federation {
	f := &Federation{
		store:   store,
		conf:    conf,
		log:     log,
		keys:    NewKeyProvider(),
		client:  &http.Client{Timeout: fetchTimeout},
		aliases: make(map[string]string),
	}
	f.deliverNow = func() { go f.RunDeliveryOnce() }
	return f
}

// gate derives the policy from current configuration. Recomputed per use so
// list changes take effect on the next decision, including for deliveries
// queued before the change.
func (f *Federation) gate() *Policy {
	return NewPolicy(f.conf.Conf.BlockedDomains, f.conf.Conf.AllowedDomains)
}

// LocalActorURI builds the canonical URI of a local actor.
func (f *Federation) LocalActorURI(kind domain.ActorKind, name string) string {
	if kind == domain.ActorGroup {
		return fmt.Sprintf("https://%s/c/%s", f.conf.Conf.Domain, name)
	}
	return fmt.Sprintf("https://%s/users/%s", f.conf.Conf.Domain, name)
}

// NewActivityURI mints an id for a locally authored activity.
func (f *Federation) NewActivityURI() string {
	return fmt.Sprintf("https://%s/activities/%s", f.conf.Conf.Domain, uuid.New().String())
}

// NewObjectURI mints an id for a locally authored object.
func (f *Federation) NewObjectURI(id uuid.UUID) string {
	return fmt.Sprintf("https://%s/posts/%s", f.conf.Conf.Domain, id.String())
}

// IsLocalURI reports whether uri lives under the instance domain.
func (f *Federation) IsLocalURI(uri string) bool {
	parsed, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Hostname(), f.conf.Conf.Domain)
}

// LocalRecipientForURI resolves a local actor URI (or one of its collection
// or inbox sub-paths) to the stored account or community.
func (f *Federation) LocalRecipientForURI(uri string) *domain.LocalRecipient {
	if !f.IsLocalURI(uri) {
		return nil
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 {
		return nil
	}
	switch parts[0] {
	case "users":
		return f.LocalRecipientByName(domain.ActorPerson, parts[1])
	case "c":
		return f.LocalRecipientByName(domain.ActorGroup, parts[1])
	}
	return nil
}

// LocalRecipientByName looks up a local user or community by name.
func (f *Federation) LocalRecipientByName(kind domain.ActorKind, name string) *domain.LocalRecipient {
	if kind == domain.ActorGroup {
		err, c := f.store.ReadCommunityByName(name)
		if err != nil || c == nil {
			return nil
		}
		return &domain.LocalRecipient{Id: c.Id, Kind: domain.ActorGroup, Name: c.Name}
	}
	err, acc := f.store.ReadAccByUsername(name)
	if err != nil || acc == nil {
		return nil
	}
	return &domain.LocalRecipient{Id: acc.Id, Kind: domain.ActorPerson, Name: acc.Username}
}

// localRecipientById resolves a stored recipient id back to the account or
// community it names.
func (f *Federation) localRecipientById(id uuid.UUID) (*domain.LocalRecipient, error) {
	if err, acc := f.store.ReadAccById(id); err == nil && acc != nil {
		return &domain.LocalRecipient{Id: acc.Id, Kind: domain.ActorPerson, Name: acc.Username}, nil
	}
	if err, c := f.store.ReadCommunityById(id); err == nil && c != nil {
		return &domain.LocalRecipient{Id: c.Id, Kind: domain.ActorGroup, Name: c.Name}, nil
	}
	return nil, fmt.Errorf("no local actor with id %s", id)
}

// PublicKeyPem returns the actor's public signing key, creating the key
// pair on first use.
func (f *Federation) PublicKeyPem(ownerId uuid.UUID) (string, error) {
	kp, err := f.ensureKeyPair(ownerId)
	if err != nil {
		return "", err
	}
	return kp.PublicKeyPem, nil
}

// signingKey returns the decrypted private key for a local actor, creating
// the pair lazily on first signing need.
func (f *Federation) signingKey(ownerId uuid.UUID) (*rsa.PrivateKey, error) {
	kp, err := f.ensureKeyPair(ownerId)
	if err != nil {
		return nil, err
	}
	pemKey, err := f.keys.Decrypt(f.conf.Conf.KeySecret, kp.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(pemKey)
}

func (f *Federation) ensureKeyPair(ownerId uuid.UUID) (*domain.KeyPair, error) {
	err, kp := f.store.ReadKeyPairByOwner(ownerId)
	if err == nil && kp != nil {
		if IsLegacyPlaintext(kp.EncryptedPrivateKey) {
			// Re-encrypt a pre-encryption key in place on first use.
			f.log.Warnf("re-encrypting legacy plaintext private key for %s", ownerId)
			sealed, err := f.keys.Encrypt(f.conf.Conf.KeySecret, kp.EncryptedPrivateKey)
			if err != nil {
				return nil, fmt.Errorf("failed to re-encrypt legacy key: %w", err)
			}
			kp.EncryptedPrivateKey = sealed
			if err := f.store.UpsertKeyPair(kp); err != nil {
				return nil, err
			}
		}
		return kp, nil
	}

	pair, err := GeneratePemKeypair()
	if err != nil {
		return nil, err
	}
	sealed, err := f.keys.Encrypt(f.conf.Conf.KeySecret, pair.Private)
	if err != nil {
		return nil, err
	}
	kp = &domain.KeyPair{
		OwnerId:             ownerId,
		PublicKeyPem:        pair.Public,
		EncryptedPrivateKey: sealed,
		CreatedAt:           time.Now(),
	}
	if err := f.store.UpsertKeyPair(kp); err != nil {
		return nil, err
	}
	return kp, nil
}
