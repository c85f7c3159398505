package web

import (
	"encoding/json"
	"fmt"

	"github.com/burrowhq/burrow/domain"
)

// GetWebfinger answers a webfinger lookup for a local user or community.
// The name is the bare account part, without acct: or domain.
func (s *Server) GetWebfinger(name string) (error, string) {
	recipient := s.fed.LocalRecipientByName(domain.ActorPerson, name)
	if recipient == nil {
		recipient = s.fed.LocalRecipientByName(domain.ActorGroup, name)
	}
	if recipient == nil {
		return fmt.Errorf("no local actor %q", name), GetWebFingerNotFound()
	}

	actorURI := s.fed.LocalActorURI(recipient.Kind, recipient.Name)
	out, err := json.Marshal(map[string]interface{}{
		"subject": fmt.Sprintf("acct:%s@%s", recipient.Name, s.conf.Conf.Domain),
		"links": []map[string]string{
			{
				"rel":  "self",
				"type": "application/activity+json",
				"href": actorURI,
			},
		},
	})
	if err != nil {
		return err, GetWebFingerNotFound()
	}
	return nil, string(out)
}

func GetWebFingerNotFound() string {
	return `{"detail":"Not Found"}`
}
