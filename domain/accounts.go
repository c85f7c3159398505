package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorKind distinguishes the two kinds of local federated identities.
type ActorKind string

const (
	ActorPerson ActorKind = "Person"
	ActorGroup  ActorKind = "Group"
)

type Account struct {
	Id          uuid.UUID
	Username    string
	DisplayName string
	Summary     string
	CreatedAt   time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tCreatedAt: %s)", acc.Id, acc.Username, acc.CreatedAt)
}

// Community is a local group actor. Posts addressed to a community federate
// as channel messages to its followers.
type Community struct {
	Id          uuid.UUID
	Name        string
	DisplayName string
	Summary     string
	CreatedAt   time.Time
}

// KeyPair holds a local actor's signing keys. The private key is stored
// AES-GCM encrypted; it only exists in plaintext while a request is signed.
type KeyPair struct {
	OwnerId             uuid.UUID
	PublicKeyPem        string
	EncryptedPrivateKey string
	CreatedAt           time.Time
}

// LocalRecipient is a resolved inbox target on this instance, either a user
// or a community.
type LocalRecipient struct {
	Id   uuid.UUID
	Kind ActorKind
	Name string
}
