package activitypub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	deliveryBatchSize = 50
	deliveryInterval  = 10 * time.Second
	staleClaimAfter   = 5 * time.Minute
)

// StartDeliveryWorker drives the delivery queue until ctx is cancelled:
// recover stale claims, then drain pending tasks.
func (f *Federation) StartDeliveryWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(deliveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := f.store.RecoverStaleDeliveries(time.Now().Add(-staleClaimAfter)); err != nil {
					f.log.Errorf("failed to recover stale deliveries: %v", err)
				} else if n > 0 {
					f.log.Infof("recovered %d stale delivery claims", n)
				}
				for f.RunDeliveryOnce() == deliveryBatchSize {
				}
			}
		}
	}()
}

// RunDeliveryOnce claims one batch of pending tasks and attempts each.
// Returns the number of tasks claimed.
func (f *Federation) RunDeliveryOnce() int {
	err, batch := f.store.ClaimDeliveryTasks(deliveryBatchSize)
	if err != nil {
		f.log.Errorf("failed to claim delivery tasks: %v", err)
		return 0
	}
	if batch == nil || len(*batch) == 0 {
		return 0
	}
	for _, task := range *batch {
		f.deliverTask(&task)
	}
	return len(*batch)
}

func (f *Federation) deliverTask(task *domain.DeliveryTask) {
	// The policy is re-checked per attempt: a host blocked after the task
	// was enqueued must not receive the payload.
	if d := f.gate().Decide(task.TargetInbox); !d.Allowed {
		f.failTerminally(task, "federation refused: "+d.Reason)
		return
	}

	err, outbox := f.store.ReadOutboxActivityByURI(task.ActivityURI)
	if err != nil || outbox == nil {
		f.failTerminally(task, "outbox payload missing")
		return
	}

	if f.IsLocalURI(task.TargetInbox) {
		f.deliverTaskLocally(task, outbox)
		return
	}

	if err := f.deliverHTTP(task, outbox); err != nil {
		f.recordFailure(task, err)
		return
	}
	if err := f.store.MarkDelivered(task.Id); err != nil {
		f.log.Errorf("failed to mark task %s delivered: %v", task.Id, err)
	}
}

// deliverTaskLocally re-enters the inbox queue for a target on this
// instance instead of going over the wire.
func (f *Federation) deliverTaskLocally(task *domain.DeliveryTask, outbox *domain.OutboxActivity) {
	recipient := f.LocalRecipientForURI(task.TargetInbox)
	if recipient == nil {
		f.failTerminally(task, "no local recipient behind inbox")
		return
	}
	var activity Activity
	if err := json.Unmarshal([]byte(outbox.ActivityJSON), &activity); err != nil {
		f.failTerminally(task, "stored activity no longer parses")
		return
	}
	_, err := f.store.InsertInboxActivity(&domain.InboxActivity{
		Id:           uuid.New(),
		RecipientId:  recipient.Id,
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    activity.ObjectURI(),
		RawJSON:      outbox.ActivityJSON,
		Status:       domain.InboxPending,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		f.recordFailure(task, err)
		return
	}
	if err := f.store.MarkDelivered(task.Id); err != nil {
		f.log.Errorf("failed to mark task %s delivered: %v", task.Id, err)
	}
}

func (f *Federation) deliverHTTP(task *domain.DeliveryTask, outbox *domain.OutboxActivity) error {
	target, err := guardURL(task.TargetInbox)
	if err != nil {
		return err
	}

	author, err := f.localRecipientById(outbox.AccountId)
	if err != nil {
		return fmt.Errorf("cannot sign: %w", err)
	}
	key, err := f.signingKey(author.Id)
	if err != nil {
		return fmt.Errorf("cannot sign: %w", err)
	}
	keyId := f.LocalActorURI(author.Kind, author.Name) + "#main-key"

	body := []byte(outbox.ActivityJSON)
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", target.Host)

	if err := SignRequest(req, key, keyId, body); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("remote inbox answered status %d", resp.StatusCode)
	}
	return nil
}

// recordFailure applies the class retry budget: under the ceiling the task
// goes back to pending, at the ceiling it fails terminally.
func (f *Federation) recordFailure(task *domain.DeliveryTask, cause error) {
	attempts := task.RetryCount + 1
	if attempts >= task.Class.MaxRetries() {
		f.log.Warnf("delivery of %s to %s failed terminally after %d attempts: %v",
			task.ActivityURI, task.TargetInbox, attempts, cause)
		if err := f.store.MarkDeliveryFailed(task.Id, cause.Error(), attempts); err != nil {
			f.log.Errorf("failed to mark task %s failed: %v", task.Id, err)
		}
		return
	}
	f.log.Debugf("delivery of %s to %s failed (attempt %d/%d): %v",
		task.ActivityURI, task.TargetInbox, attempts, task.Class.MaxRetries(), cause)
	if err := f.store.RecordDeliveryAttempt(task.Id, attempts, cause.Error()); err != nil {
		f.log.Errorf("failed to record delivery attempt for %s: %v", task.Id, err)
	}
}

// failTerminally marks a task failed with its retry budget spent, so retry
// accounting reads consistently for tasks that never got an attempt.
func (f *Federation) failTerminally(task *domain.DeliveryTask, reason string) {
	f.log.Warnf("delivery of %s to %s refused: %s", task.ActivityURI, task.TargetInbox, reason)
	if err := f.store.MarkDeliveryFailed(task.Id, reason, task.Class.MaxRetries()); err != nil {
		f.log.Errorf("failed to mark task %s failed: %v", task.Id, err)
	}
}
