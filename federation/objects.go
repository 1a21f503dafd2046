package federation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Kind discriminates the closed set of federated object variants this
// server understands. Anything else parses as KindUnknown and is carried
// around only as raw JSON.
type Kind int

const (
	KindUnknown Kind = iota
	KindActor
	KindNote
	KindActivity
	KindCollection
	KindCollectionPage
	KindImage
	KindVideo
	KindDocument
	KindLink
	KindTombstone
)

func (k Kind) String() string {
	switch k {
	case KindActor:
		return "Actor"
	case KindNote:
		return "Note"
	case KindActivity:
		return "Activity"
	case KindCollection:
		return "Collection"
	case KindCollectionPage:
		return "CollectionPage"
	case KindImage:
		return "Image"
	case KindVideo:
		return "Video"
	case KindDocument:
		return "Document"
	case KindLink:
		return "Link"
	case KindTombstone:
		return "Tombstone"
	default:
		return "Unknown"
	}
}

func kindOf(typ string) Kind {
	switch typ {
	case "Person", "Service", "Application", "Group", "Organization":
		return KindActor
	case "Note", "Article", "Page", "Question":
		return KindNote
	case "Create", "Announce", "Like", "Follow", "Undo", "Accept", "Reject", "Update", "Delete":
		return KindActivity
	case "Collection", "OrderedCollection":
		return KindCollection
	case "CollectionPage", "OrderedCollectionPage":
		return KindCollectionPage
	case "Image":
		return KindImage
	case "Video":
		return KindVideo
	case "Document", "Audio":
		return KindDocument
	case "Link", "Mention":
		return KindLink
	case "Tombstone":
		return KindTombstone
	default:
		return KindUnknown
	}
}

// Object is a parsed federated entity. Exactly one of the payload pointers
// matching Kind is set; Raw always holds the original JSON so the object
// can be re-serialized (e.g. into the cache) without loss.
type Object struct {
	ID   string
	Type string
	Kind Kind
	Raw  json.RawMessage

	Actor      *ActorFields
	Note       *NoteFields
	Activity   *ActivityFields
	Collection *CollectionFields
	Media      *MediaFields
	Link       *LinkFields
}

// Ref is an item reference inside a federated object: either a bare URI
// that still needs resolving, or an already materialized object.
type Ref struct {
	URI    string
	Object *Object
}

// IsZero reports whether the reference carries neither a URI nor an object.
func (r *Ref) IsZero() bool {
	return r == nil || (r.URI == "" && r.Object == nil)
}

type ActorFields struct {
	PreferredUsername string
	Name              string
	Summary           string
	Inbox             string
	Outbox            string
	Followers         string
	Following         string
	URL               string
	Icon              *Ref
	Image             *Ref
	PublicKeyPem      string
}

type NoteFields struct {
	Content      string
	Summary      string
	AttributedTo *Ref
	Published    time.Time
	InReplyTo    string
	Sensitive    bool
	Attachments  []*Object
}

type ActivityFields struct {
	Actor     *Ref
	Object    *Ref
	Published time.Time
}

type CollectionFields struct {
	TotalItems *int
	First      *Ref
	Next       *Ref
	PartOf     string
	Items      []*Ref
}

type MediaFields struct {
	URL       string
	MediaType string
	Name      string
}

type LinkFields struct {
	Href      string
	MediaType string
	Name      string
}

// rawObject is the decoding intermediate. All reference-valued fields are
// kept as RawMessage because remote servers emit them as strings, objects,
// or arrays of either.
type rawObject struct {
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name"`
	Summary           string          `json:"summary"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox"`
	Followers         string          `json:"followers"`
	Following         string          `json:"following"`
	Icon              json.RawMessage `json:"icon"`
	Image             json.RawMessage `json:"image"`
	PublicKey         struct {
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
	URL          json.RawMessage `json:"url"`
	Content      string          `json:"content"`
	AttributedTo json.RawMessage `json:"attributedTo"`
	Published    string          `json:"published"`
	InReplyTo    json.RawMessage `json:"inReplyTo"`
	Sensitive    bool            `json:"sensitive"`
	Attachment   json.RawMessage `json:"attachment"`
	Actor        json.RawMessage `json:"actor"`
	Object       json.RawMessage `json:"object"`
	TotalItems   *int            `json:"totalItems"`
	First        json.RawMessage `json:"first"`
	Next         json.RawMessage `json:"next"`
	PartOf       json.RawMessage `json:"partOf"`
	Items        json.RawMessage `json:"items"`
	OrderedItems json.RawMessage `json:"orderedItems"`
	Href         string          `json:"href"`
	MediaType    string          `json:"mediaType"`
}

// ParseObject decodes a federated object from its JSON representation.
func ParseObject(data []byte) (*Object, error) {
	var raw rawObject
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse federated object: %w", err)
	}

	obj := &Object{
		ID:   raw.ID,
		Type: raw.Type,
		Kind: kindOf(raw.Type),
		Raw:  append(json.RawMessage(nil), data...),
	}

	switch obj.Kind {
	case KindActor:
		obj.Actor = &ActorFields{
			PreferredUsername: raw.PreferredUsername,
			Name:              raw.Name,
			Summary:           raw.Summary,
			Inbox:             raw.Inbox,
			Outbox:            raw.Outbox,
			Followers:         raw.Followers,
			Following:         raw.Following,
			URL:               decodeURL(raw.URL),
			Icon:              decodeRef(raw.Icon),
			Image:             decodeRef(raw.Image),
			PublicKeyPem:      raw.PublicKey.PublicKeyPem,
		}
	case KindNote:
		obj.Note = &NoteFields{
			Content:      raw.Content,
			Summary:      raw.Summary,
			AttributedTo: decodeRef(raw.AttributedTo),
			Published:    decodeTime(raw.Published),
			InReplyTo:    decodeRefURI(raw.InReplyTo),
			Sensitive:    raw.Sensitive,
			Attachments:  decodeObjectList(raw.Attachment),
		}
	case KindActivity:
		obj.Activity = &ActivityFields{
			Actor:     decodeRef(raw.Actor),
			Object:    decodeRef(raw.Object),
			Published: decodeTime(raw.Published),
		}
	case KindCollection, KindCollectionPage:
		items := raw.OrderedItems
		if items == nil {
			items = raw.Items
		}
		obj.Collection = &CollectionFields{
			TotalItems: raw.TotalItems,
			First:      decodeRef(raw.First),
			Next:       decodeRef(raw.Next),
			PartOf:     decodeRefURI(raw.PartOf),
			Items:      decodeRefList(items),
		}
	case KindImage, KindVideo, KindDocument:
		obj.Media = &MediaFields{
			URL:       decodeURL(raw.URL),
			MediaType: raw.MediaType,
			Name:      raw.Name,
		}
	case KindLink:
		obj.Link = &LinkFields{
			Href:      raw.Href,
			MediaType: raw.MediaType,
			Name:      raw.Name,
		}
	}

	return obj, nil
}

// decodeRef turns a string-or-object JSON value into a Ref. Arrays take
// their first element. Returns nil for absent or undecodable values.
func decodeRef(data json.RawMessage) *Ref {
	if len(data) == 0 {
		return nil
	}

	var uri string
	if err := json.Unmarshal(data, &uri); err == nil {
		if uri == "" {
			return nil
		}
		return &Ref{URI: uri}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			return nil
		}
		return decodeRef(arr[0])
	}

	obj, err := ParseObject(data)
	if err != nil || (obj.ID == "" && obj.Kind == KindUnknown) {
		return nil
	}
	if obj.ID == "" && obj.Kind == KindLink && obj.Link != nil {
		// Bare links usually have no id; address them by href.
		return &Ref{URI: obj.Link.Href, Object: obj}
	}
	return &Ref{URI: obj.ID, Object: obj}
}

// decodeRefURI is decodeRef reduced to just the URI.
func decodeRefURI(data json.RawMessage) string {
	ref := decodeRef(data)
	if ref == nil {
		return ""
	}
	return ref.URI
}

// decodeRefList decodes a JSON array of string-or-object item references.
// A single non-array value decodes as a one-element list.
func decodeRefList(data json.RawMessage) []*Ref {
	if len(data) == 0 {
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		if ref := decodeRef(data); ref != nil {
			return []*Ref{ref}
		}
		return nil
	}

	refs := make([]*Ref, 0, len(arr))
	for _, entry := range arr {
		if ref := decodeRef(entry); ref != nil {
			refs = append(refs, ref)
		}
	}
	return refs
}

// decodeObjectList decodes attachment-style values: a single object or an
// array of objects. Bare URI strings are dropped since an unresolvable
// attachment carries no usable media info.
func decodeObjectList(data json.RawMessage) []*Object {
	if len(data) == 0 {
		return nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		arr = []json.RawMessage{data}
	}

	objs := make([]*Object, 0, len(arr))
	for _, entry := range arr {
		obj, err := ParseObject(entry)
		if err != nil {
			continue
		}
		objs = append(objs, obj)
	}
	return objs
}

// decodeURL handles the url field's three encodings: plain string, Link
// object with href, or an array of either.
func decodeURL(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			return ""
		}
		return decodeURL(arr[0])
	}

	var link struct {
		Href string `json:"href"`
	}
	if err := json.Unmarshal(data, &link); err == nil {
		return link.Href
	}
	return ""
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Handle derives the @username@host form for an actor from its preferred
// username and the host of its canonical URI. Empty when either part is
// missing.
func (o *Object) Handle() string {
	if o == nil || o.Kind != KindActor || o.Actor == nil || o.Actor.PreferredUsername == "" {
		return ""
	}
	parsed, err := url.Parse(o.ID)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return fmt.Sprintf("@%s@%s", o.Actor.PreferredUsername, parsed.Host)
}

// IsCollection reports whether the object is a collection or a page of one.
func (o *Object) IsCollection() bool {
	return o != nil && (o.Kind == KindCollection || o.Kind == KindCollectionPage) && o.Collection != nil
}
