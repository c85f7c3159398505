package web

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"
)

// GetRSS renders an account's public posts as an RSS feed.
func (s *Server) GetRSS(name string) (error, string) {
	err, acc := s.store.ReadAccByUsername(name)
	if err != nil || acc == nil {
		return fmt.Errorf("no account %q", name), ""
	}

	err, posts := s.store.ReadPublicPostsByAccount(acc.Id, outboxPageSize, 0)
	if err != nil {
		return err, ""
	}

	displayName := acc.DisplayName
	if displayName == "" {
		displayName = acc.Username
	}

	feed := &feeds.Feed{
		Title:       fmt.Sprintf("%s@%s", acc.Username, s.conf.Conf.Domain),
		Link:        &feeds.Link{Href: fmt.Sprintf("https://%s/users/%s", s.conf.Conf.Domain, acc.Username)},
		Description: fmt.Sprintf("Posts by %s", displayName),
		Created:     acc.CreatedAt,
	}

	for _, post := range *posts {
		item := &feeds.Item{
			Id:          post.ObjectURI,
			Title:       fmt.Sprintf("Post from %s", post.CreatedAt.Format(time.DateTime)),
			Link:        &feeds.Link{Href: post.ObjectURI},
			Description: post.Content,
			Author:      &feeds.Author{Name: acc.Username},
			Created:     post.CreatedAt,
		}
		if post.EditedAt != nil {
			item.Updated = *post.EditedAt
		}
		feed.Items = append(feed.Items, item)
	}

	rss, err := feed.ToRss()
	if err != nil {
		return err, ""
	}
	return nil, rss
}
