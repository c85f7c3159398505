package activitypub

import (
	"context"
	"time"
)

const (
	cleanupInterval      = time.Hour
	inboxRetention       = 30 * 24 * time.Hour
	taskRetention        = 7 * 24 * time.Hour
	outboxRetention      = 90 * 24 * time.Hour
	remoteActorRetention = 90 * 24 * time.Hour
)

// StartCleanupWorker prunes terminal queue records and unreferenced remote
// actors on an hourly cadence until ctx is cancelled.
func (f *Federation) StartCleanupWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.RunCleanupOnce()
			}
		}
	}()
}

// RunCleanupOnce runs every retention pass once. Each pass is independent;
// a failing one doesn't stop the others.
func (f *Federation) RunCleanupOnce() {
	now := time.Now()

	if n, err := f.store.PurgeInboxActivitiesBefore(now.Add(-inboxRetention)); err != nil {
		f.log.Errorf("inbox purge failed: %v", err)
	} else if n > 0 {
		f.log.Infof("purged %d settled inbox activities", n)
	}

	if n, err := f.store.PurgeDeliveryTasksBefore(now.Add(-taskRetention)); err != nil {
		f.log.Errorf("delivery task purge failed: %v", err)
	} else if n > 0 {
		f.log.Infof("purged %d settled delivery tasks", n)
	}

	if n, err := f.store.PurgeOutboxActivitiesBefore(now.Add(-outboxRetention)); err != nil {
		f.log.Errorf("outbox purge failed: %v", err)
	} else if n > 0 {
		f.log.Infof("purged %d outbox activities", n)
	}

	if n, err := f.store.PurgeRemoteAccountsBefore(now.Add(-remoteActorRetention)); err != nil {
		f.log.Errorf("remote actor purge failed: %v", err)
	} else if n > 0 {
		f.log.Infof("purged %d idle remote actors", n)
	}
}
