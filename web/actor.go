package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

// GetActorDocument renders a local user or community as an ActivityPub
// actor document.
func (s *Server) GetActorDocument(kind domain.ActorKind, name string) (error, string) {
	var displayName, summary string
	var ownerId uuid.UUID

	if kind == domain.ActorGroup {
		err, community := s.store.ReadCommunityByName(name)
		if err != nil || community == nil {
			return fmt.Errorf("no community %q", name), "{}"
		}
		displayName, summary, ownerId = community.DisplayName, community.Summary, community.Id
	} else {
		err, acc := s.store.ReadAccByUsername(name)
		if err != nil || acc == nil {
			return fmt.Errorf("no account %q", name), "{}"
		}
		displayName, summary, ownerId = acc.DisplayName, acc.Summary, acc.Id
	}
	if displayName == "" {
		displayName = name
	}

	pubKey, err := s.fed.PublicKeyPem(ownerId)
	if err != nil {
		return err, "{}"
	}

	actorURI := s.fed.LocalActorURI(kind, name)
	doc := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                        actorURI,
		"type":                      string(kind),
		"preferredUsername":         name,
		"name":                      displayName,
		"summary":                   summary,
		"inbox":                     actorURI + "/inbox",
		"outbox":                    actorURI + "/outbox",
		"followers":                 actorURI + "/followers",
		"following":                 actorURI + "/following",
		"url":                       actorURI,
		"manuallyApprovesFollowers": s.conf.Conf.FollowMode != "auto",
		"discoverable":              true,
		"endpoints": map[string]string{
			"sharedInbox": fmt.Sprintf("https://%s/inbox", s.conf.Conf.Domain),
		},
		"publicKey": map[string]string{
			"id":           actorURI + "#main-key",
			"owner":        actorURI,
			"publicKeyPem": pubKey,
		},
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(out)
}

// GetPostObject renders a local post as an ActivityPub Note, or a Tombstone
// once it has been deleted.
func (s *Server) GetPostObject(postId uuid.UUID) (error, string) {
	err, post := s.store.ReadPostByObjectURI(s.fed.NewObjectURI(postId))
	if err != nil || post == nil {
		return fmt.Errorf("no post %s", postId), "{}"
	}

	if post.Tombstoned {
		out, _ := json.Marshal(map[string]interface{}{
			"@context": "https://www.w3.org/ns/activitystreams",
			"id":       post.ObjectURI,
			"type":     "Tombstone",
		})
		return nil, string(out)
	}

	err, account := s.store.ReadAccById(post.AccountId)
	if err != nil || account == nil {
		return fmt.Errorf("no author for post %s", postId), "{}"
	}
	actorURI := s.fed.LocalActorURI(domain.ActorPerson, account.Username)

	obj := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           post.ObjectURI,
		"type":         "Note",
		"attributedTo": actorURI,
		"content":      post.Content,
		"published":    post.CreatedAt.UTC().Format(time.RFC3339),
		"to":           []string{"https://www.w3.org/ns/activitystreams#Public"},
		"cc":           []string{actorURI + "/followers"},
	}
	if post.Sensitive {
		obj["sensitive"] = true
	}
	if post.InReplyToURI != "" {
		obj["inReplyTo"] = post.InReplyToURI
	}
	if post.EditedAt != nil {
		obj["updated"] = post.EditedAt.UTC().Format(time.RFC3339)
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return err, "{}"
	}
	return nil, string(out)
}
