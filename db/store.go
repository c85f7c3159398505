package db

import (
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

// Store is the persistence contract of the federation engine. One required
// method per operation; implementations must provide all of them, there is
// no raw-query fallback path.
//
// Insert methods returning a bool implement insert-or-ignore semantics on
// the row's natural unique key: false means the row already existed, which
// callers treat as the idempotency signal, not an error.
type Store interface {
	Close() error

	// Accounts and communities
	CreateAccount(acc *domain.Account) error
	ReadAccByUsername(username string) (error, *domain.Account)
	ReadAccById(id uuid.UUID) (error, *domain.Account)
	CreateCommunity(c *domain.Community) error
	ReadCommunityByName(name string) (error, *domain.Community)
	ReadCommunityById(id uuid.UUID) (error, *domain.Community)

	// Signing keys
	ReadKeyPairByOwner(ownerId uuid.UUID) (error, *domain.KeyPair)
	UpsertKeyPair(kp *domain.KeyPair) error

	// Posts
	CreatePost(p *domain.Post) (bool, error)
	ReadPostByObjectURI(uri string) (error, *domain.Post)
	UpdatePost(p *domain.Post) error
	TombstonePost(id uuid.UUID) error
	ReadPublicPostsByAccount(accountId uuid.UUID, limit, offset int) (error, *[]domain.Post)
	CountPublicPostsByAccount(accountId uuid.UUID) (error, int)

	// Remote actor cache
	UpsertRemoteAccount(acc *domain.RemoteAccount) error
	ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount)
	ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount)
	DeleteRemoteAccount(id uuid.UUID) error

	// Follows
	CreateFollow(f *domain.Follow) (bool, error)
	ReadFollowByURI(uri string) (error, *domain.Follow)
	ReadFollowByAccounts(accountId, targetId uuid.UUID) (error, *domain.Follow)
	UpdateFollowStatus(uri string, status domain.FollowStatus) error
	DeleteFollowByURI(uri string) error
	DeleteFollowsByAccount(accountId uuid.UUID) error
	ReadFollowers(targetId uuid.UUID, limit, offset int) (error, *[]domain.Follow)
	ReadFollowing(accountId uuid.UUID, limit, offset int) (error, *[]domain.Follow)
	CountFollowers(targetId uuid.UUID) (error, int)
	CountFollowing(accountId uuid.UUID) (error, int)

	// Reactions and boosts
	CreateReaction(r *domain.Reaction) (bool, error)
	DeleteReactionByActivityURI(uri string) error
	CreateAnnounce(a *domain.Announce) (bool, error)
	DeleteAnnounceByActivityURI(uri string) error

	// Moderation and notifications
	CreateReport(r *domain.Report) error
	CreateNotification(n *domain.Notification) error
	ReadNotificationsByAccount(accountId uuid.UUID, limit int) (error, *[]domain.Notification)

	// Inbox pipeline
	InsertInboxActivity(a *domain.InboxActivity) (bool, error)
	ClaimInboxActivities(n int) (error, *[]domain.InboxActivity)
	MarkInboxProcessed(id uuid.UUID) error
	MarkInboxFailed(id uuid.UUID, errMsg string) error

	// Outbox and delivery queue
	CreateOutboxActivity(o *domain.OutboxActivity) error
	ReadOutboxActivityByURI(uri string) (error, *domain.OutboxActivity)
	ReadOutboxActivityByObjectURI(uri string) (error, *domain.OutboxActivity)
	CreateDeliveryTask(t *domain.DeliveryTask) error
	ClaimDeliveryTasks(n int) (error, *[]domain.DeliveryTask)
	MarkDelivered(id uuid.UUID) error
	MarkDeliveryFailed(id uuid.UUID, errMsg string, retryCount int) error
	RecordDeliveryAttempt(id uuid.UUID, retryCount int, errMsg string) error
	RecoverStaleDeliveries(olderThan time.Time) (int64, error)

	// Retention
	PurgeInboxActivitiesBefore(t time.Time) (int64, error)
	PurgeDeliveryTasksBefore(t time.Time) (int64, error)
	PurgeOutboxActivitiesBefore(t time.Time) (int64, error)
	PurgeRemoteAccountsBefore(t time.Time) (int64, error)
}

var _ Store = (*DB)(nil)
