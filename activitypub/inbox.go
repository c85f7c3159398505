package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	inboxBatchSize = 25
	inboxInterval  = 5 * time.Second
)

// AdmissionError rejects a request at the inbox door with the HTTP status
// the caller should answer with. Reasons stay free of key material.
type AdmissionError struct {
	Status int
	Reason string
}

func (e *AdmissionError) Error() string {
	return e.Reason
}

func admissionErr(status int, format string, args ...any) *AdmissionError {
	return &AdmissionError{Status: status, Reason: fmt.Sprintf(format, args...)}
}

// activityKind tags the activity types the processor dispatches on. Anything
// else is kindUnknown and acknowledged without effect.
type activityKind int

const (
	kindUnknown activityKind = iota
	kindFollow
	kindAccept
	kindReject
	kindLike
	kindCreate
	kindAnnounce
	kindUndo
	kindUpdate
	kindDelete
	kindFlag
)

func parseKind(activityType string) activityKind {
	switch activityType {
	case "Follow":
		return kindFollow
	case "Accept":
		return kindAccept
	case "Reject":
		return kindReject
	case "Like":
		return kindLike
	case "Create":
		return kindCreate
	case "Announce":
		return kindAnnounce
	case "Undo":
		return kindUndo
	case "Update":
		return kindUpdate
	case "Delete":
		return kindDelete
	case "Flag":
		return kindFlag
	}
	return kindUnknown
}

// Admit runs the admission pipeline on a request already routed to a local
// recipient: shape check, policy gate, signature verification, idempotent
// persistence. On success the activity is queued pending; processing happens
// asynchronously. A duplicate delivery is admitted as a no-op.
func (f *Federation) Admit(req *http.Request, body []byte, recipient *domain.LocalRecipient) error {
	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return admissionErr(http.StatusBadRequest, "malformed activity json")
	}
	if activity.ID == "" || activity.Type == "" || activity.Actor == "" {
		return admissionErr(http.StatusBadRequest, "activity missing id, type or actor")
	}

	keyId := ExtractKeyId(req)
	if keyId == "" {
		return admissionErr(http.StatusUnauthorized, "missing signature keyId")
	}
	if d := f.gate().Decide(keyId); !d.Allowed {
		return admissionErr(http.StatusForbidden, "federation refused: %s", d.Reason)
	}
	if d := f.gate().Decide(activity.Actor); !d.Allowed {
		return admissionErr(http.StatusForbidden, "federation refused: %s", d.Reason)
	}

	actor, err := f.verifySender(req, body, keyId)
	if err != nil {
		var admission *AdmissionError
		if errors.As(err, &admission) {
			return admission
		}
		return admissionErr(http.StatusUnauthorized, "signature verification failed")
	}

	// Delete for an actor we never saw: acknowledge without storing, there
	// is nothing to delete and fetching a deleted actor cannot succeed.
	if actor == nil {
		return nil
	}

	if activity.Actor != actor.ActorURI {
		return admissionErr(http.StatusUnauthorized, "activity actor does not match signing actor")
	}

	inserted, err := f.store.InsertInboxActivity(&domain.InboxActivity{
		Id:           uuid.New(),
		RecipientId:  recipient.Id,
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     actor.ActorURI,
		ObjectURI:    activity.ObjectURI(),
		RawJSON:      string(body),
		Status:       domain.InboxPending,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to queue activity: %w", err)
	}
	if !inserted {
		f.log.Debugf("duplicate activity %s for recipient %s", activity.ID, recipient.Name)
	}
	return nil
}

// verifySender resolves the signing actor and checks the request signature,
// refreshing the cached actor once if verification fails against a possibly
// rotated key. A nil actor with nil error means a self-referential Delete
// whose actor is already gone.
func (f *Federation) verifySender(req *http.Request, body []byte, keyId string) (*domain.RemoteAccount, error) {
	actor, err := f.ResolveActor(keyId, false)
	if err != nil {
		var activity Activity
		if json.Unmarshal(body, &activity) == nil && activity.Type == "Delete" && activity.Actor == activity.ObjectURI() {
			return nil, nil
		}
		return nil, admissionErr(http.StatusUnauthorized, "could not resolve signing actor")
	}
	if actor.PublicKeyPem == "" {
		return nil, admissionErr(http.StatusUnauthorized, "signing actor has no public key")
	}

	if _, err := VerifyRequest(req, actor.PublicKeyPem, body); err != nil {
		switch {
		case errors.Is(err, ErrMissingSignature),
			errors.Is(err, ErrMissingDate),
			errors.Is(err, ErrStaleDate),
			errors.Is(err, ErrMissingDigest),
			errors.Is(err, ErrDigestMismatch):
			return nil, admissionErr(http.StatusUnauthorized, "%s", err.Error())
		}
		refreshed, refreshErr := f.ResolveActor(keyId, true)
		if refreshErr != nil {
			return nil, admissionErr(http.StatusUnauthorized, "signature verification failed")
		}
		if _, err := VerifyRequest(req, refreshed.PublicKeyPem, body); err != nil {
			return nil, admissionErr(http.StatusUnauthorized, "signature verification failed")
		}
		return refreshed, nil
	}
	return actor, nil
}

// ProcessInboxOnce claims a batch of pending activities and runs each one to
// a terminal state. Failures are recorded, never retried.
func (f *Federation) ProcessInboxOnce() int {
	err, batch := f.store.ClaimInboxActivities(inboxBatchSize)
	if err != nil {
		f.log.Errorf("failed to claim inbox activities: %v", err)
		return 0
	}
	if batch == nil || len(*batch) == 0 {
		return 0
	}

	for _, item := range *batch {
		if err := f.processOne(&item); err != nil {
			f.log.Warnf("activity %s (%s) failed: %v", item.ActivityURI, item.ActivityType, err)
			if markErr := f.store.MarkInboxFailed(item.Id, err.Error()); markErr != nil {
				f.log.Errorf("failed to mark activity %s failed: %v", item.ActivityURI, markErr)
			}
			continue
		}
		if err := f.store.MarkInboxProcessed(item.Id); err != nil {
			f.log.Errorf("failed to mark activity %s processed: %v", item.ActivityURI, err)
		}
	}
	return len(*batch)
}

func (f *Federation) processOne(item *domain.InboxActivity) error {
	recipient, err := f.localRecipientById(item.RecipientId)
	if err != nil {
		return err
	}

	var activity Activity
	if err := json.Unmarshal([]byte(item.RawJSON), &activity); err != nil {
		return fmt.Errorf("stored activity no longer parses: %w", err)
	}

	switch parseKind(item.ActivityType) {
	case kindFollow:
		return f.handleFollow(recipient, &activity)
	case kindAccept:
		return f.handleAccept(recipient, &activity)
	case kindReject:
		return f.handleReject(recipient, &activity)
	case kindLike:
		return f.handleLike(recipient, &activity)
	case kindCreate:
		return f.handleCreate(recipient, &activity)
	case kindAnnounce:
		return f.handleAnnounce(recipient, &activity)
	case kindUndo:
		return f.handleUndo(recipient, &activity)
	case kindUpdate:
		return f.handleUpdate(recipient, &activity)
	case kindDelete:
		return f.handleDelete(recipient, &activity)
	case kindFlag:
		return f.handleFlag(recipient, &activity)
	}
	f.log.Debugf("ignoring activity type %s from %s", item.ActivityType, item.ActorURI)
	return nil
}

// StartInboxWorker drains the pending queue until ctx is cancelled.
func (f *Federation) StartInboxWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(inboxInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Keep draining while full batches come back.
				for f.ProcessInboxOnce() == inboxBatchSize {
				}
			}
		}
	}()
}
