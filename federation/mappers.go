package federation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// UserView is the application-facing shape of a federated actor.
type UserView struct {
	ID        string `json:"id"`
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	Summary   string `json:"summary,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Header    string `json:"header,omitempty"`
	Followers *int   `json:"followers,omitempty"`
	Following *int   `json:"following,omitempty"`
}

// PostView is the application-facing shape of a federated note.
type PostView struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Published      time.Time       `json:"published"`
	Author         *UserView       `json:"author"`
	InReplyTo      string          `json:"inReplyTo,omitempty"`
	Sensitive      bool            `json:"sensitive,omitempty"`
	ContentWarning string          `json:"contentWarning,omitempty"`
	Attachment     *AttachmentView `json:"attachment,omitempty"`
}

// AttachmentView is the single piece of media surfaced per post.
type AttachmentView struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType"`
}

// ObjectToUser maps a federated actor to its full view model, resolving
// avatar, header image and follower/following counts concurrently. Actors
// missing an id or preferredUsername map to nil. Every remote sub-fetch is
// best effort; a failed count or image simply stays absent.
func (fc *Context) ObjectToUser(ctx context.Context, obj *Object) *UserView {
	user := fc.objectToUserSummary(ctx, obj)
	if user == nil {
		return nil
	}

	actor := obj.Actor
	var avatar, header string
	var followers, following *int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		avatar = fc.mediaURL(gctx, actor.Icon)
		return nil
	})
	g.Go(func() error {
		header = fc.mediaURL(gctx, actor.Image)
		return nil
	})
	g.Go(func() error {
		if actor.Followers != "" {
			followers = fc.counts.FetchCount(gctx, actor.Followers)
		}
		return nil
	})
	g.Go(func() error {
		if actor.Following != "" {
			following = fc.counts.FetchCount(gctx, actor.Following)
		}
		return nil
	})
	g.Wait()

	user.Avatar = avatar
	user.Header = header
	user.Followers = followers
	user.Following = following
	return user
}

// objectToUserSummary maps an actor without the remote sub-fetches. Used
// for follower listings and post attribution where counts would fan out
// one remote call per row.
func (fc *Context) objectToUserSummary(ctx context.Context, obj *Object) *UserView {
	if obj == nil || obj.Kind != KindActor || obj.Actor == nil {
		return nil
	}
	if obj.ID == "" || obj.Actor.PreferredUsername == "" {
		return nil
	}

	name := obj.Actor.Name
	if name == "" {
		name = obj.Actor.PreferredUsername
	}

	view := &UserView{
		ID:      obj.ID,
		Handle:  obj.Handle(),
		Name:    name,
		Summary: obj.Actor.Summary,
	}
	// The inline icon URL is free when embedded; only the full mapper
	// chases icon references over the network.
	if obj.Actor.Icon != nil && obj.Actor.Icon.Object != nil && obj.Actor.Icon.Object.Media != nil {
		view.Avatar = obj.Actor.Icon.Object.Media.URL
	}
	return view
}

// mediaURL resolves an image reference to its URL, fetching the object
// when only a URI is embedded.
func (fc *Context) mediaURL(ctx context.Context, ref *Ref) string {
	if ref.IsZero() {
		return ""
	}
	obj := fc.resolveRef(ctx, ref)
	if obj == nil {
		// A bare URI that does not resolve to an object is taken as the
		// image address itself.
		return ref.URI
	}
	if obj.Media != nil {
		return obj.Media.URL
	}
	if obj.Link != nil {
		return obj.Link.Href
	}
	return ""
}

// ObjectToPost maps a federated note to a post view model. Notes missing
// an id or content, or whose attribution cannot be resolved to an actor
// with id and preferredUsername, map to nil.
func (fc *Context) ObjectToPost(ctx context.Context, obj *Object) *PostView {
	if obj == nil || obj.Kind != KindNote || obj.Note == nil {
		return nil
	}
	if obj.ID == "" || obj.Note.Content == "" {
		return nil
	}

	author := fc.objectToUserSummary(ctx, fc.resolveRef(ctx, obj.Note.AttributedTo))
	if author == nil {
		return nil
	}

	return &PostView{
		ID:             obj.ID,
		Content:        obj.Note.Content,
		Published:      obj.Note.Published,
		Author:         author,
		InReplyTo:      obj.Note.InReplyTo,
		Sensitive:      obj.Note.Sensitive,
		ContentWarning: obj.Note.Summary,
		Attachment:     pickAttachment(obj.Note.Attachments),
	}
}

// pickAttachment selects the first attachment carrying a known image or
// video media type. The three encodings seen in the wild are a Link with
// href, a Document with url, and an explicit Image/Video object. The view
// model surfaces at most one attachment.
func pickAttachment(attachments []*Object) *AttachmentView {
	for _, att := range attachments {
		var url, mediaType string

		switch att.Kind {
		case KindLink:
			url = att.Link.Href
			mediaType = att.Link.MediaType
		case KindDocument, KindImage, KindVideo:
			url = att.Media.URL
			mediaType = att.Media.MediaType
		default:
			continue
		}

		if url == "" {
			continue
		}
		if mediaType == "" {
			// Image/Video objects imply their media class even without
			// an explicit mediaType.
			switch att.Kind {
			case KindImage:
				mediaType = "image/*"
			case KindVideo:
				mediaType = "video/*"
			default:
				continue
			}
		}
		if !mediaTypeSupported(mediaType) {
			continue
		}

		return &AttachmentView{URL: url, MediaType: mediaType}
	}
	return nil
}

func mediaTypeSupported(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/") || strings.HasPrefix(mediaType, "video/")
}

// mapUserSummary adapts objectToUserSummary to the CollectionItems
// mapper signature.
func (fc *Context) mapUserSummary(ctx context.Context, obj *Object) (*UserView, error) {
	user := fc.objectToUserSummary(ctx, obj)
	if user == nil {
		return nil, fmt.Errorf("object %s is not a mappable actor", obj.ID)
	}
	return user, nil
}

// mapPost adapts ObjectToPost to the CollectionItems mapper signature.
// Outbox items usually arrive as Create activities wrapping the note, so
// activities are unwrapped first.
func (fc *Context) mapPost(ctx context.Context, obj *Object) (*PostView, error) {
	if obj != nil && obj.Kind == KindActivity && obj.Activity != nil {
		if obj.Type != "Create" {
			return nil, fmt.Errorf("activity %s is not a Create", obj.ID)
		}
		obj = fc.resolveRef(ctx, obj.Activity.Object)
	}
	post := fc.ObjectToPost(ctx, obj)
	if post == nil {
		return nil, fmt.Errorf("object is not a mappable note")
	}
	return post, nil
}

// UserPage reads one page of an actor collection (followers or following)
// as user summaries.
func (fc *Context) UserPage(ctx context.Context, source string, pageToken string) (CollectionSlice[*UserView], error) {
	return CollectionItems(ctx, fc, source, pageToken, fc.mapUserSummary)
}

// PostPage reads one page of an outbox collection as post views.
func (fc *Context) PostPage(ctx context.Context, source string, pageToken string) (CollectionSlice[*PostView], error) {
	return CollectionItems(ctx, fc, source, pageToken, fc.mapPost)
}
