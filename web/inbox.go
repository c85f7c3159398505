package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/burrowhq/burrow/activitypub"
	"github.com/burrowhq/burrow/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleActorInbox serves POST on a single actor's inbox. An unknown
// recipient is a 404 before any signature work happens.
func (s *Server) handleActorInbox(c *gin.Context, kind domain.ActorKind, name string) {
	recipient := s.fed.LocalRecipientByName(kind, name)
	if recipient == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such recipient"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	s.admit(c, body, recipient)
}

// handleSharedInbox serves POST /inbox. The recipients are derived from the
// activity's addressing; an activity naming nobody local falls back to the
// local followers of the sending actor, which is how public posts from
// followed actors usually arrive.
func (s *Server) handleSharedInbox(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	var activity activitypub.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed activity json"})
		return
	}

	recipients := s.sharedInboxRecipients(&activity)
	if len(recipients) == 0 {
		s.log.Debugf("shared inbox: no local recipient for %s from %s", activity.Type, activity.Actor)
		c.Status(http.StatusAccepted)
		return
	}

	for i := range recipients {
		if i == len(recipients)-1 {
			// The last admission decides the response; earlier ones only log.
			s.admit(c, body, &recipients[i])
			return
		}
		if err := s.fed.Admit(c.Request, body, &recipients[i]); err != nil {
			s.log.Debugf("shared inbox: admission for %s failed: %v", recipients[i].Name, err)
		}
	}
}

func (s *Server) sharedInboxRecipients(activity *activitypub.Activity) []domain.LocalRecipient {
	seen := make(map[uuid.UUID]bool)
	var out []domain.LocalRecipient
	add := func(r *domain.LocalRecipient) {
		if r != nil && !seen[r.Id] {
			seen[r.Id] = true
			out = append(out, *r)
		}
	}

	for _, uri := range activity.Recipients() {
		add(s.fed.LocalRecipientForURI(uri))
	}
	// A Follow names its target in the object.
	add(s.fed.LocalRecipientForURI(activity.ObjectURI()))

	if len(out) > 0 {
		return out
	}

	// Nobody named directly: route to local followers of the sender.
	err, remote := s.store.ReadRemoteAccountByURI(activity.Actor)
	if err != nil || remote == nil {
		return nil
	}
	err, follows := s.store.ReadFollowers(remote.Id, collectionPageSize, 0)
	if err != nil || follows == nil {
		return nil
	}
	for _, follow := range *follows {
		if err, acc := s.store.ReadAccById(follow.AccountId); err == nil && acc != nil {
			add(&domain.LocalRecipient{Id: acc.Id, Kind: domain.ActorPerson, Name: acc.Username})
		}
	}
	return out
}

// admit runs the admission pipeline and maps its outcome onto the response.
func (s *Server) admit(c *gin.Context, body []byte, recipient *domain.LocalRecipient) {
	if err := s.fed.Admit(c.Request, body, recipient); err != nil {
		var admission *activitypub.AdmissionError
		if errors.As(err, &admission) {
			c.JSON(admission.Status, gin.H{"error": admission.Reason})
			return
		}
		s.log.Errorf("admission failed for %s: %v", recipient.Name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Status(http.StatusAccepted)
}
