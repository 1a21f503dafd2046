package federation

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxExpandAttempts caps how often a single reader may be expanded while
// trying to refill an empty buffer. A remote that keeps handing out next
// links whose pages yield zero surviving items would otherwise spin the
// merge loop forever; hitting the cap counts as exhaustion.
const maxExpandAttempts = 5

// feedItem is one buffered entry of a reader: the materialized post plus
// the publish timestamp of the wrapping activity (not the note's own).
type feedItem struct {
	post      *PostView
	published time.Time
}

// FeedReader is the request-scoped cursor over one followed actor's
// outbox. Items holds not-yet-emitted entries, Next the URI of the next
// unfetched page (empty once exhausted), Current the last page consumed
// (used to detect a remote that points next back at the same page).
// Readers are values; expansion returns a new state instead of mutating.
type FeedReader struct {
	ActorURI string
	Items    []feedItem
	Next     string
	Current  string
}

// Exhausted reports whether the reader can contribute nothing further.
func (r FeedReader) Exhausted() bool {
	return len(r.Items) == 0 && r.Next == ""
}

// expand fetches the reader's next page and returns the successor state:
// the buffer is replaced (not appended) with the page's surviving items
// and Next advances to the page's continuation. Any failure - the page
// not resolving, not being a collection, or repeating itself - exhausts
// the reader so a single broken remote truncates only its own stream.
func (fc *Context) expand(ctx context.Context, r FeedReader, cutoff time.Time) FeedReader {
	exhausted := FeedReader{ActorURI: r.ActorURI, Current: r.Current}

	if r.Next == "" {
		return exhausted
	}

	page := fc.Lookup(ctx, r.Next, false)
	if page == nil || !page.IsCollection() {
		fc.log.Warn().Str("actor", r.ActorURI).Str("page", r.Next).Msg("expand: outbox page did not resolve, exhausting reader")
		return exhausted
	}

	// A root collection sits at the outbox URI itself; descend to its
	// first page before iterating.
	if page.Kind == KindCollection {
		if page.Collection.First.IsZero() {
			return exhausted
		}
		first := fc.resolveRef(ctx, page.Collection.First)
		if first == nil || !first.IsCollection() {
			fc.log.Warn().Str("actor", r.ActorURI).Msg("expand: outbox first page did not resolve, exhausting reader")
			return exhausted
		}
		page = first
	}

	if page.ID != "" && page.ID == r.Current {
		fc.log.Warn().Str("actor", r.ActorURI).Str("page", page.ID).Msg("expand: remote repeats its own page, exhausting reader")
		return exhausted
	}

	items := make([]feedItem, 0, len(page.Collection.Items))
	for _, ref := range page.Collection.Items {
		item, ok := fc.feedItemFromRef(ctx, ref, cutoff)
		if ok {
			items = append(items, item)
		}
	}

	next := ""
	if page.Kind == KindCollectionPage && !page.Collection.Next.IsZero() {
		next = page.Collection.Next.URI
	}

	current := page.ID
	if current == "" {
		current = r.Next
	}

	return FeedReader{
		ActorURI: r.ActorURI,
		Items:    items,
		Next:     next,
		Current:  current,
	}
}

// feedItemFromRef turns one outbox entry into a buffered feed item.
// Entries must be Create activities wrapping a resolvable note; anything
// else is dropped, as is any item whose activity timestamp is not
// strictly before the cutoff (clock-skewed remotes must not inject
// future-dated posts ahead of the cursor).
func (fc *Context) feedItemFromRef(ctx context.Context, ref *Ref, cutoff time.Time) (feedItem, bool) {
	activity := fc.resolveRef(ctx, ref)
	if activity == nil || activity.Kind != KindActivity || activity.Type != "Create" {
		return feedItem{}, false
	}

	note := fc.resolveRef(ctx, activity.Activity.Object)
	if note == nil {
		return feedItem{}, false
	}

	post := fc.ObjectToPost(ctx, note)
	if post == nil {
		return feedItem{}, false
	}

	published := activity.Activity.Published
	if published.IsZero() {
		published = post.Published
	}
	if published.IsZero() {
		return feedItem{}, false
	}
	// The cursor cannot express fractions below a millisecond, so item
	// timestamps are held at cursor precision too; sub-millisecond
	// fractions would make items compare differently than the cursor
	// they produce.
	published = published.Truncate(time.Millisecond)
	if !published.Before(cutoff) {
		fc.log.Debug().Str("post", post.ID).Time("published", published).Msg("feed: dropping item published too recently for cursor")
		return feedItem{}, false
	}

	// The feed is ordered by the wrapping activity's timestamp.
	post.Published = published
	return feedItem{post: post, published: published}, true
}

// fill expands a reader until its buffer is non-empty or it exhausts,
// bounded by maxExpandAttempts.
func (fc *Context) fill(ctx context.Context, r FeedReader, cutoff time.Time) FeedReader {
	for attempts := 0; len(r.Items) == 0 && r.Next != ""; attempts++ {
		if attempts >= maxExpandAttempts {
			fc.log.Warn().Str("actor", r.ActorURI).Msg("feed: expansion cap reached, treating reader as exhausted")
			r.Next = ""
			break
		}
		r = fc.expand(ctx, r, cutoff)
	}
	return r
}

// FollowingFeed merges the outbox streams of every actor in the viewer's
// following collection into one page, globally ordered by descending
// publish time.
//
// One reader is opened per followed actor and lazily expanded a page at a
// time; each merge step emits the maximum-timestamp item across all
// buffers (equal timestamps break toward the smaller actor URI, keeping
// pagination deterministic). Only items strictly before cutoff are
// eligible, and the returned continuation cursor is the millisecond
// timestamp of the last emitted item - re-supplying it as the next
// request's cutoff yields no duplicates and no gaps. Timestamps are
// truncated to cursor precision, and a page runs past limit when that
// is needed to finish a group of equal timestamps. A single
// unreachable or malformed remote stream contributes nothing but never
// fails the request.
func (fc *Context) FollowingFeed(ctx context.Context, followingURI string, limit int, cutoff time.Time) (PaginatedList[*PostView], error) {
	if limit <= 0 {
		limit = fc.feedPageSize
	}

	following := fc.Lookup(ctx, followingURI, false)
	if following == nil || !following.IsCollection() {
		return PaginatedList[*PostView]{}, ErrNotFound
	}

	var readers []FeedReader
	for _, obj := range fc.ReadEntireCollection(ctx, following) {
		if obj.Kind != KindActor || obj.Actor == nil || obj.Actor.Outbox == "" {
			continue
		}
		readers = append(readers, FeedReader{ActorURI: obj.ID, Next: obj.Actor.Outbox})
	}

	// Prime every reader concurrently; dozens of remote outboxes may be
	// involved and the first page fetch dominates latency.
	g, gctx := errgroup.WithContext(ctx)
	for i := range readers {
		g.Go(func() error {
			readers[i] = fc.fill(gctx, readers[i], cutoff)
			return nil
		})
	}
	g.Wait()

	feed := make([]*PostView, 0, limit)
	for {
		// Refill any drained reader that still has pages left.
		for i := range readers {
			if len(readers[i].Items) == 0 && readers[i].Next != "" {
				readers[i] = fc.fill(ctx, readers[i], cutoff)
			}
		}

		readerIdx, itemIdx := -1, -1
		var best time.Time
		for i := range readers {
			for j, item := range readers[i].Items {
				take := readerIdx == -1 || item.published.After(best) ||
					(item.published.Equal(best) && readers[i].ActorURI < readers[readerIdx].ActorURI)
				if take {
					readerIdx, itemIdx = i, j
					best = item.published
				}
			}
		}
		if readerIdx == -1 {
			break
		}

		// The continuation cursor excludes everything at or after the
		// last emitted timestamp, so a page must never split a group of
		// equal timestamps; past the limit, only items finishing the
		// current group are still taken.
		if len(feed) >= limit && !best.Equal(feed[len(feed)-1].Published) {
			break
		}

		r := &readers[readerIdx]
		feed = append(feed, r.Items[itemIdx].post)
		r.Items = append(r.Items[:itemIdx], r.Items[itemIdx+1:]...)
	}

	out := PaginatedList[*PostView]{Items: feed}
	if len(feed) > 0 && moreRemaining(readers) {
		out.Next = strconv.FormatInt(feed[len(feed)-1].Published.UnixMilli(), 10)
	}
	return out, nil
}

func moreRemaining(readers []FeedReader) bool {
	for _, r := range readers {
		if !r.Exhausted() {
			return true
		}
	}
	return false
}

// ParseFeedCursor decodes a decimal epoch-millisecond cursor into the
// cutoff instant for the next page. An empty or malformed cursor falls
// back to now, i.e. the first page.
func ParseFeedCursor(cursor string, now time.Time) time.Time {
	if cursor == "" {
		return now
	}
	millis, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || millis <= 0 {
		return now
	}
	return time.UnixMilli(millis)
}
