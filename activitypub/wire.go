package activitypub

import (
	"encoding/json"
	"strings"
)

const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	PublicURI              = ActivityStreamsContext + "#Public"
	ContentType            = "application/activity+json"
)

// FlexList is an ActivityStreams addressing field that arrives either as a
// single string or as an array of strings. Non-string entries are dropped.
type FlexList []string

func (l *FlexList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = FlexList{single}
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(FlexList, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func (l FlexList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(l))
}

// Activity represents a generic ActivityPub activity. Object stays raw so
// each handler can parse the shape it expects.
type Activity struct {
	Context   interface{}     `json:"@context,omitempty"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Object    json.RawMessage `json:"object,omitempty"`
	To        FlexList        `json:"to,omitempty"`
	Cc        FlexList        `json:"cc,omitempty"`
	Bto       FlexList        `json:"bto,omitempty"`
	Bcc       FlexList        `json:"bcc,omitempty"`
	Published string          `json:"published,omitempty"`
	InReplyTo string          `json:"inReplyTo,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// embeddedObject is the minimal shape shared by all embedded objects.
type embeddedObject struct {
	ID   string   `json:"id"`
	Type string   `json:"type"`
	To   FlexList `json:"to,omitempty"`
	Cc   FlexList `json:"cc,omitempty"`
}

// ObjectURI returns the object's id whether the object is a bare URI string
// or an embedded object.
func (a *Activity) ObjectURI() string {
	if len(a.Object) == 0 {
		return ""
	}
	var uri string
	if err := json.Unmarshal(a.Object, &uri); err == nil {
		return uri
	}
	var obj embeddedObject
	if err := json.Unmarshal(a.Object, &obj); err == nil {
		return obj.ID
	}
	return ""
}

// ObjectType returns the embedded object's type, or "" for bare URIs.
func (a *Activity) ObjectType() string {
	if len(a.Object) == 0 {
		return ""
	}
	var obj embeddedObject
	if err := json.Unmarshal(a.Object, &obj); err == nil {
		return obj.Type
	}
	return ""
}

// Recipients returns the union of the activity's and the embedded object's
// addressing fields, deduplicated, in order of first appearance.
func (a *Activity) Recipients() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(lists ...FlexList) {
		for _, l := range lists {
			for _, uri := range l {
				if uri == "" || seen[uri] {
					continue
				}
				seen[uri] = true
				out = append(out, uri)
			}
		}
	}
	add(a.To, a.Cc, a.Bto, a.Bcc)
	var obj embeddedObject
	if len(a.Object) > 0 {
		if err := json.Unmarshal(a.Object, &obj); err == nil {
			add(obj.To, obj.Cc)
		}
	}
	return out
}

// NoteObject is the embedded object of a Create or Update carrying content.
type NoteObject struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Content      string   `json:"content"`
	Published    string   `json:"published,omitempty"`
	AttributedTo string   `json:"attributedTo"`
	InReplyTo    string   `json:"inReplyTo,omitempty"`
	Sensitive    bool     `json:"sensitive,omitempty"`
	To           FlexList `json:"to,omitempty"`
	Cc           FlexList `json:"cc,omitempty"`
}

// Note parses the embedded object as a NoteObject.
func (a *Activity) Note() (*NoteObject, error) {
	var note NoteObject
	if err := json.Unmarshal(a.Object, &note); err != nil {
		return nil, err
	}
	return &note, nil
}

// IsPublic reports whether the addressing includes the Public collection,
// in any of its accepted spellings.
func IsPublic(uri string) bool {
	switch uri {
	case PublicURI, "as:Public", "Public":
		return true
	}
	return false
}

// IsCollectionURI reports whether uri points at a followers or following
// collection rather than a deliverable actor.
func IsCollectionURI(uri string) bool {
	return strings.HasSuffix(uri, "/followers") || strings.HasSuffix(uri, "/following")
}
