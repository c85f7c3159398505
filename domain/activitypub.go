package domain

import (
	"time"

	"github.com/google/uuid"
)

// RemoteAccount represents a cached federated actor, Person or Group.
type RemoteAccount struct {
	Id             uuid.UUID
	Username       string
	Domain         string
	ActorURI       string
	Kind           ActorKind
	DisplayName    string
	Summary        string
	InboxURI       string
	SharedInboxURI string
	OutboxURI      string
	PublicKeyId    string
	PublicKeyPem   string
	AvatarURL      string
	LastFetchedAt  time.Time
}

// FollowStatus tracks the lifecycle of a follow relationship.
type FollowStatus string

const (
	FollowPending  FollowStatus = "pending"
	FollowAccepted FollowStatus = "accepted"
	FollowRejected FollowStatus = "rejected"
)

// Follow represents a follow relationship between two actors, either of
// which may be local or remote.
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // the follower
	TargetAccountId uuid.UUID // the account being followed
	URI             string    // Follow activity URI
	Status          FollowStatus
	CreatedAt       time.Time
}

// Reaction is a like on a post, keyed by the remote Like activity URI so
// re-delivery stays idempotent.
type Reaction struct {
	Id          uuid.UUID
	PostId      uuid.UUID
	ActorURI    string
	ActivityURI string
	CreatedAt   time.Time
}

// Announce is a boost of a post, keyed like Reaction.
type Announce struct {
	Id          uuid.UUID
	PostId      uuid.UUID
	ActorURI    string
	ActivityURI string
	CreatedAt   time.Time
}

// InboxStatus is the state machine of a received activity. Terminal states
// are final; failed records are a moderation concern, not a retry concern.
type InboxStatus string

const (
	InboxPending    InboxStatus = "pending"
	InboxProcessing InboxStatus = "processing"
	InboxProcessed  InboxStatus = "processed"
	InboxFailed     InboxStatus = "failed"
)

// InboxActivity is the persisted copy of a received activity. Uniqueness is
// per (recipient, activity URI): the same activity may legitimately arrive
// for several local recipients through the shared inbox.
type InboxActivity struct {
	Id           uuid.UUID
	RecipientId  uuid.UUID
	ActivityURI  string
	ActivityType string
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Status       InboxStatus
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// OutboxActivity is a locally authored activity queued for fan-out. Write
// once; delivery tasks recover the payload from here for retries.
type OutboxActivity struct {
	Id           uuid.UUID
	AccountId    uuid.UUID
	ActivityURI  string
	ActivityType string
	ObjectURI    string
	ActivityJSON string
	CreatedAt    time.Time
}

// DeliveryStatus is the state machine of a delivery task. "delivering" marks
// a claimed in-flight task; stale claims are recovered back to pending.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryInFlight  DeliveryStatus = "delivering"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// MessageClass selects the retry budget for a delivery task.
type MessageClass string

const (
	ClassDirect    MessageClass = "direct"
	ClassBroadcast MessageClass = "broadcast"
)

// MaxRetries returns the retry ceiling for the class. Direct messages get a
// low ceiling to bound staleness of ephemeral content.
func (c MessageClass) MaxRetries() int {
	if c == ClassDirect {
		return 2
	}
	return 5
}

// DeliveryTask is one (activity, target inbox URL) pair.
type DeliveryTask struct {
	Id            uuid.UUID
	ActivityURI   string
	TargetInbox   string
	Class         MessageClass
	Status        DeliveryStatus
	RetryCount    int
	LastError     string
	LastAttemptAt *time.Time
	ClaimedAt     *time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
}
