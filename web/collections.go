package web

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/burrowhq/burrow/domain"
	"github.com/google/uuid"
)

const (
	outboxPageSize     = 20
	collectionPageSize = 100
)

// GetOutbox renders an account's public posts as an OrderedCollection.
// Page 0 is the collection summary; pages start at 1.
func (s *Server) GetOutbox(name string, page int) (error, string) {
	err, acc := s.store.ReadAccByUsername(name)
	if err != nil || acc == nil {
		return fmt.Errorf("no account %q", name), "{}"
	}
	actorURI := s.fed.LocalActorURI(domain.ActorPerson, name)
	collectionURI := actorURI + "/outbox"

	err, total := s.store.CountPublicPostsByAccount(acc.Id)
	if err != nil {
		return err, "{}"
	}

	if page < 1 {
		return marshalCollection(collectionURI, total)
	}

	err, posts := s.store.ReadPublicPostsByAccount(acc.Id, outboxPageSize, (page-1)*outboxPageSize)
	if err != nil {
		return err, "{}"
	}

	items := make([]interface{}, 0, len(*posts))
	for _, post := range *posts {
		items = append(items, map[string]interface{}{
			"id":    post.ObjectURI + "/activity",
			"type":  "Create",
			"actor": actorURI,
			"object": map[string]interface{}{
				"id":           post.ObjectURI,
				"type":         "Note",
				"attributedTo": actorURI,
				"content":      post.Content,
				"published":    post.CreatedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	return marshalCollectionPage(collectionURI, page, outboxPageSize, total, items)
}

// GetFollowers renders the followers collection of a local actor.
func (s *Server) GetFollowers(kind domain.ActorKind, name string, page int) (error, string) {
	return s.followCollection(kind, name, "followers", page)
}

// GetFollowing renders the following collection of a local actor.
func (s *Server) GetFollowing(kind domain.ActorKind, name string, page int) (error, string) {
	return s.followCollection(kind, name, "following", page)
}

func (s *Server) followCollection(kind domain.ActorKind, name, which string, page int) (error, string) {
	recipient := s.fed.LocalRecipientByName(kind, name)
	if recipient == nil {
		return fmt.Errorf("no local actor %q", name), "{}"
	}
	collectionURI := s.fed.LocalActorURI(kind, name) + "/" + which

	var err error
	var total int
	if which == "followers" {
		err, total = s.store.CountFollowers(recipient.Id)
	} else {
		err, total = s.store.CountFollowing(recipient.Id)
	}
	if err != nil {
		return err, "{}"
	}

	if page < 1 {
		return marshalCollection(collectionURI, total)
	}

	var follows *[]domain.Follow
	offset := (page - 1) * collectionPageSize
	if which == "followers" {
		err, follows = s.store.ReadFollowers(recipient.Id, collectionPageSize, offset)
	} else {
		err, follows = s.store.ReadFollowing(recipient.Id, collectionPageSize, offset)
	}
	if err != nil {
		return err, "{}"
	}

	items := make([]interface{}, 0, len(*follows))
	for _, follow := range *follows {
		counterpart := follow.AccountId
		if which == "following" {
			counterpart = follow.TargetAccountId
		}
		if uri := s.actorURIForId(counterpart); uri != "" {
			items = append(items, uri)
		}
	}
	return marshalCollectionPage(collectionURI, page, collectionPageSize, total, items)
}

// actorURIForId maps a follow counterpart id to its actor URI, whichever
// side of the federation it lives on.
func (s *Server) actorURIForId(id uuid.UUID) string {
	if err, remote := s.store.ReadRemoteAccountById(id); err == nil && remote != nil {
		return remote.ActorURI
	}
	if err, acc := s.store.ReadAccById(id); err == nil && acc != nil {
		return s.fed.LocalActorURI(domain.ActorPerson, acc.Username)
	}
	if err, community := s.store.ReadCommunityById(id); err == nil && community != nil {
		return s.fed.LocalActorURI(domain.ActorGroup, community.Name)
	}
	return ""
}

func marshalCollection(collectionURI string, total int) (error, string) {
	out, err := json.Marshal(map[string]interface{}{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": total,
		"first":      collectionURI + "?page=1",
	})
	if err != nil {
		return err, "{}"
	}
	return nil, string(out)
}

func marshalCollectionPage(collectionURI string, page, pageSize, total int, items []interface{}) (error, string) {
	doc := map[string]interface{}{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?page=%d", collectionURI, page),
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"totalItems":   total,
		"orderedItems": items,
	}
	if page*pageSize < total {
		doc["next"] = fmt.Sprintf("%s?page=%d", collectionURI, page+1)
	}
	if page > 1 {
		doc["prev"] = fmt.Sprintf("%s?page=%d", collectionURI, page-1)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return err, "{}"
	}
	return nil, string(out)
}
