package federation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestObjectToUserResolvesCountsAndImages(t *testing.T) {
	resolver := newFakeResolver()
	cache := newMemCache()
	ctx := context.Background()

	alice := "https://remote.example/users/alice"
	resolver.add(alice, `{
		"id": "https://remote.example/users/alice",
		"type": "Person",
		"preferredUsername": "alice",
		"name": "Alice",
		"summary": "hello",
		"icon": {"type": "Image", "url": "https://remote.example/media/avatar.png"},
		"image": {"type": "Image", "url": "https://remote.example/media/header.png"},
		"followers": "https://remote.example/users/alice/followers",
		"following": "https://remote.example/users/alice/following"
	}`)

	counts := &fakeCounts{counts: map[string]int{
		"https://remote.example/users/alice/followers": 12,
		"https://remote.example/users/alice/following": 7,
	}}
	fc := NewContext(resolver, cache, counts, zerolog.Nop(), time.Minute, 20)

	user := fc.ObjectToUser(ctx, fc.Lookup(ctx, alice, false))
	if user == nil {
		t.Fatal("Expected a mapped user")
	}

	if user.Handle != "@alice@remote.example" {
		t.Errorf("Expected handle @alice@remote.example, got %s", user.Handle)
	}
	if user.Name != "Alice" || user.Summary != "hello" {
		t.Errorf("Unexpected name/summary: %s / %s", user.Name, user.Summary)
	}
	if user.Avatar != "https://remote.example/media/avatar.png" {
		t.Errorf("Unexpected avatar: %s", user.Avatar)
	}
	if user.Header != "https://remote.example/media/header.png" {
		t.Errorf("Unexpected header: %s", user.Header)
	}
	if user.Followers == nil || *user.Followers != 12 {
		t.Errorf("Expected 12 followers, got %v", user.Followers)
	}
	if user.Following == nil || *user.Following != 7 {
		t.Errorf("Expected 7 following, got %v", user.Following)
	}
}

func TestObjectToUserNameFallsBackToUsername(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())

	obj := mustParse(t, `{
		"id": "https://remote.example/users/bob",
		"type": "Person",
		"preferredUsername": "bob"
	}`)
	user := fc.ObjectToUser(context.Background(), obj)
	if user == nil {
		t.Fatal("Expected a mapped user")
	}
	if user.Name != "bob" {
		t.Errorf("Missing name should fall back to the username, got %s", user.Name)
	}
}

func TestObjectToUserRejectsIncompleteActors(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"type": "Person", "preferredUsername": "x"}`},
		{"missing username", `{"id": "https://remote.example/users/x", "type": "Person"}`},
		{"not an actor", `{"id": "https://remote.example/notes/1", "type": "Note", "content": "x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if user := fc.ObjectToUser(ctx, mustParse(t, tt.body)); user != nil {
				t.Errorf("Expected nil, got %+v", user)
			}
		})
	}
}

func TestObjectToPostMapsNoteFields(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://remote.example/users/alice"
	resolver.add(alice, actorJSON(alice, "alice"))

	published := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	note := mustParse(t, `{
		"id": "https://remote.example/notes/1",
		"type": "Note",
		"content": "<p>hi</p>",
		"attributedTo": "`+alice+`",
		"published": "`+published.Format(time.RFC3339)+`",
		"inReplyTo": "https://remote.example/notes/0",
		"sensitive": true,
		"summary": "cw text"
	}`)

	post := fc.ObjectToPost(ctx, note)
	if post == nil {
		t.Fatal("Expected a mapped post")
	}
	if post.Content != "<p>hi</p>" {
		t.Errorf("Unexpected content: %s", post.Content)
	}
	if !post.Published.Equal(published) {
		t.Errorf("Unexpected published: %v", post.Published)
	}
	if post.Author == nil || post.Author.Handle != "@alice@remote.example" {
		t.Errorf("Unexpected author: %+v", post.Author)
	}
	if post.InReplyTo != "https://remote.example/notes/0" {
		t.Errorf("Unexpected inReplyTo: %s", post.InReplyTo)
	}
	if !post.Sensitive || post.ContentWarning != "cw text" {
		t.Errorf("Unexpected sensitivity mapping: %v / %s", post.Sensitive, post.ContentWarning)
	}
}

func TestObjectToPostRejectsUnattributableNotes(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	// Attribution points at a URI the resolver does not know.
	note := mustParse(t, `{
		"id": "https://remote.example/notes/1",
		"type": "Note",
		"content": "orphan",
		"attributedTo": "https://remote.example/users/gone"
	}`)
	if post := fc.ObjectToPost(ctx, note); post != nil {
		t.Errorf("Unresolvable attribution should map to nil, got %+v", post)
	}

	empty := mustParse(t, `{
		"id": "https://remote.example/notes/2",
		"type": "Note",
		"attributedTo": "https://remote.example/users/gone"
	}`)
	if post := fc.ObjectToPost(ctx, empty); post != nil {
		t.Errorf("Empty content should map to nil, got %+v", post)
	}
}

func TestPickAttachmentEncodings(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantURL  string
		wantType string
	}{
		{
			"link with href",
			`{"type": "Link", "href": "https://m.example/a.png", "mediaType": "image/png"}`,
			"https://m.example/a.png", "image/png",
		},
		{
			"document with url",
			`{"type": "Document", "url": "https://m.example/b.jpg", "mediaType": "image/jpeg"}`,
			"https://m.example/b.jpg", "image/jpeg",
		},
		{
			"image without mediaType",
			`{"type": "Image", "url": "https://m.example/c.png"}`,
			"https://m.example/c.png", "image/*",
		},
		{
			"video",
			`{"type": "Video", "url": "https://m.example/d.mp4", "mediaType": "video/mp4"}`,
			"https://m.example/d.mp4", "video/mp4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := mustParse(t, tt.body)
			att := pickAttachment([]*Object{obj})
			if att == nil {
				t.Fatal("Expected an attachment")
			}
			if att.URL != tt.wantURL || att.MediaType != tt.wantType {
				t.Errorf("Got %s (%s), expected %s (%s)", att.URL, att.MediaType, tt.wantURL, tt.wantType)
			}
		})
	}
}

func TestPickAttachmentSkipsUnsupported(t *testing.T) {
	pdf := mustParse(t, `{"type": "Document", "url": "https://m.example/doc.pdf", "mediaType": "application/pdf"}`)
	img := mustParse(t, `{"type": "Document", "url": "https://m.example/ok.png", "mediaType": "image/png"}`)

	att := pickAttachment([]*Object{pdf, img})
	if att == nil || att.URL != "https://m.example/ok.png" {
		t.Errorf("Unsupported media should be skipped in favor of later matches, got %+v", att)
	}

	if pickAttachment([]*Object{pdf}) != nil {
		t.Error("A lone unsupported attachment should yield nil")
	}
	if pickAttachment(nil) != nil {
		t.Error("No attachments should yield nil")
	}
}
