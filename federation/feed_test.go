package federation

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// addActorWithOutbox registers an actor plus a single-page outbox of
// Create activities, one per timestamp, newest first.
func addActorWithOutbox(r *fakeResolver, uri, username string, times ...time.Time) {
	r.add(uri, actorJSON(uri, username))

	outbox := uri + "/outbox"
	page := outbox + "?page=1"
	items := make([]string, 0, len(times))
	for i, ts := range times {
		noteID := fmt.Sprintf("%s/notes/%d", uri, i)
		createID := fmt.Sprintf("%s/creates/%d", uri, i)
		items = append(items, createJSON(createID, uri, noteJSON(noteID, "post", uri, ts), ts))
	}
	r.add(outbox, collectionJSON(outbox, page, len(times)))
	r.add(page, pageJSON(page, "", items...))
}

func addFollowing(r *fakeResolver, uri string, actorURIs ...string) {
	page := uri + "?page=1"
	r.add(uri, collectionJSON(uri, page, len(actorURIs)))
	r.add(page, pageJSON(page, "", quoted(actorURIs...)...))
}

func publishedMillis(t *testing.T, feed PaginatedList[*PostView]) []int64 {
	t.Helper()
	out := make([]int64, len(feed.Items))
	for i, post := range feed.Items {
		out[i] = post.Published.UnixMilli()
	}
	return out
}

func TestFollowingFeedMergesByDescendingTime(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	bob := "https://b.example/users/bob"
	addActorWithOutbox(resolver, alice, "alice",
		time.UnixMilli(30), time.UnixMilli(20), time.UnixMilli(10))
	addActorWithOutbox(resolver, bob, "bob",
		time.UnixMilli(25), time.UnixMilli(5))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, bob)

	feed, err := fc.FollowingFeed(ctx, following, 4, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}

	got := publishedMillis(t, feed)
	want := []int64{30, 25, 20, 10}
	if len(got) != len(want) {
		t.Fatalf("Expected %d posts, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected published %d, got %d", i, want[i], got[i])
		}
	}

	if feed.Next != "10" {
		t.Errorf("Expected continuation cursor 10, got %q", feed.Next)
	}

	// Resuming with the cursor as cutoff picks up the unconsumed item.
	rest, err := fc.FollowingFeed(ctx, following, 4, ParseFeedCursor(feed.Next, time.Now()))
	if err != nil {
		t.Fatalf("FollowingFeed continuation failed: %v", err)
	}
	if got := publishedMillis(t, rest); len(got) != 1 || got[0] != 5 {
		t.Errorf("Continuation page should hold exactly the post at 5, got %v", got)
	}
	if rest.Next != "" {
		t.Errorf("Fully drained feed should have no cursor, got %q", rest.Next)
	}
}

func TestFollowingFeedCutoffIsStrict(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	addActorWithOutbox(resolver, alice, "alice",
		time.UnixMilli(100), time.UnixMilli(99))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}

	got := publishedMillis(t, feed)
	if len(got) != 1 || got[0] != 99 {
		t.Errorf("Item at exactly the cutoff must be excluded, got %v", got)
	}
}

func TestFollowingFeedSurvivesBrokenRemote(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	bob := "https://b.example/users/bob"
	addActorWithOutbox(resolver, alice, "alice", time.UnixMilli(30))
	resolver.add(bob, actorJSON(bob, "bob"))
	resolver.fail(bob + "/outbox")

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, bob)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("One broken outbox must not fail the feed: %v", err)
	}
	if got := publishedMillis(t, feed); len(got) != 1 || got[0] != 30 {
		t.Errorf("Expected only the healthy actor's post, got %v", got)
	}
}

func TestFollowingFeedTieBreaksOnActorURI(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	// zed sorts after alice on URI despite being listed first.
	zed := "https://z.example/users/zed"
	alice := "https://a.example/users/alice"
	addActorWithOutbox(resolver, zed, "zed", time.UnixMilli(50))
	addActorWithOutbox(resolver, alice, "alice", time.UnixMilli(50))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, zed, alice)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}
	if len(feed.Items) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(feed.Items))
	}
	if feed.Items[0].Author.Handle != "@alice@a.example" {
		t.Errorf("Equal timestamps should emit the smaller actor URI first, got %s", feed.Items[0].Author.Handle)
	}
	if feed.Items[1].Author.Handle != "@zed@z.example" {
		t.Errorf("Expected zed second, got %s", feed.Items[1].Author.Handle)
	}
}

func TestFollowingFeedSkipsNonCreateEntries(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	resolver.add(alice, actorJSON(alice, "alice"))

	outbox := alice + "/outbox"
	page := outbox + "?page=1"
	announce := fmt.Sprintf(`{
		"id": "%s/announces/1",
		"type": "Announce",
		"actor": "%s",
		"object": "https://elsewhere.example/notes/9",
		"published": "%s"
	}`, alice, alice, time.UnixMilli(40).UTC().Format(time.RFC3339Nano))
	create := createJSON(alice+"/creates/1", alice,
		noteJSON(alice+"/notes/1", "kept", alice, time.UnixMilli(30)), time.UnixMilli(30))
	bareNote := noteJSON(alice+"/notes/2", "bare", alice, time.UnixMilli(20))

	resolver.add(outbox, collectionJSON(outbox, page, 3))
	resolver.add(page, pageJSON(page, "", announce, create, bareNote))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}
	if got := publishedMillis(t, feed); len(got) != 1 || got[0] != 30 {
		t.Errorf("Only the Create entry should survive, got %v", got)
	}
}

func TestFollowingFeedExpansionCap(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	addActorWithOutbox(resolver, alice, "alice", time.UnixMilli(30))

	// hollow hands out an endless chain of pages that never yield an item.
	hollow := "https://h.example/users/hollow"
	resolver.add(hollow, actorJSON(hollow, "hollow"))
	outbox := hollow + "/outbox"
	pageURI := func(n int) string { return fmt.Sprintf("%s?page=%d", outbox, n) }
	resolver.add(outbox, collectionJSON(outbox, pageURI(1), 0))
	for n := 1; n <= 10; n++ {
		resolver.add(pageURI(n), pageJSON(pageURI(n), pageURI(n+1)))
	}

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, hollow)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}
	if got := publishedMillis(t, feed); len(got) != 1 || got[0] != 30 {
		t.Errorf("Expected only the healthy actor's post, got %v", got)
	}
	if resolver.callCount(pageURI(8)) != 0 {
		t.Error("Expansion should stop at the cap instead of walking the whole chain")
	}
}

func TestFollowingFeedUnknownFollowingIsNotFound(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())

	_, err := fc.FollowingFeed(context.Background(), "https://home.example/nope", 10, time.Now())
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFollowingFeedIgnoresNonActorFollows(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	addActorWithOutbox(resolver, alice, "alice", time.UnixMilli(30))
	note := "https://a.example/notes/77"
	resolver.add(note, noteJSON(note, "not an actor", alice, time.UnixMilli(10)))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, note)

	feed, err := fc.FollowingFeed(ctx, following, 10, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}
	if len(feed.Items) != 1 {
		t.Errorf("Non-actor follow entries should be ignored, got %d posts", len(feed.Items))
	}
}

func TestParseFeedCursor(t *testing.T) {
	now := time.UnixMilli(123456)

	tests := []struct {
		name   string
		cursor string
		want   time.Time
	}{
		{"empty", "", now},
		{"garbage", "not-a-number", now},
		{"negative", "-42", now},
		{"zero", "0", now},
		{"valid", "99", time.UnixMilli(99)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFeedCursor(tt.cursor, now)
			if !got.Equal(tt.want) {
				t.Errorf("ParseFeedCursor(%q) = %v, expected %v", tt.cursor, got, tt.want)
			}
		})
	}
}

func TestFollowingFeedFinishesEqualTimestampGroup(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	alice := "https://a.example/users/alice"
	bob := "https://b.example/users/bob"
	addActorWithOutbox(resolver, alice, "alice",
		time.UnixMilli(60), time.UnixMilli(50), time.UnixMilli(40))
	addActorWithOutbox(resolver, bob, "bob",
		time.UnixMilli(50))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, bob)

	// The limit falls inside the group of items published at 50. The
	// page must run past it: the cursor will be 50, so anything at 50
	// left behind could never be emitted again.
	feed, err := fc.FollowingFeed(ctx, following, 2, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}

	got := publishedMillis(t, feed)
	want := []int64{60, 50, 50}
	if len(got) != len(want) {
		t.Fatalf("Expected %d posts, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Position %d: expected published %d, got %d", i, want[i], got[i])
		}
	}
	if feed.Next != "50" {
		t.Errorf("Expected continuation cursor 50, got %q", feed.Next)
	}

	rest, err := fc.FollowingFeed(ctx, following, 2, ParseFeedCursor(feed.Next, time.Now()))
	if err != nil {
		t.Fatalf("FollowingFeed continuation failed: %v", err)
	}
	if got := publishedMillis(t, rest); len(got) != 1 || got[0] != 40 {
		t.Errorf("Continuation page should hold exactly the post at 40, got %v", got)
	}
}

func TestFollowingFeedTruncatesSubMillisecondTimestamps(t *testing.T) {
	resolver := newFakeResolver()
	fc := newTestContext(resolver, newMemCache())
	ctx := context.Background()

	// Both posts land in millisecond 50, with different microsecond
	// fractions. The cursor speaks milliseconds, so the fractions must
	// not influence eligibility or ordering.
	alice := "https://a.example/users/alice"
	bob := "https://b.example/users/bob"
	addActorWithOutbox(resolver, alice, "alice",
		time.UnixMilli(50).Add(700*time.Microsecond))
	addActorWithOutbox(resolver, bob, "bob",
		time.UnixMilli(50).Add(200*time.Microsecond), time.UnixMilli(30))

	following := "https://home.example/users/viewer/following"
	addFollowing(resolver, following, alice, bob)

	feed, err := fc.FollowingFeed(ctx, following, 1, time.UnixMilli(100))
	if err != nil {
		t.Fatalf("FollowingFeed failed: %v", err)
	}

	got := publishedMillis(t, feed)
	if len(got) != 2 || got[0] != 50 || got[1] != 50 {
		t.Fatalf("Expected both posts at millisecond 50, got %v", got)
	}
	for i, post := range feed.Items {
		if !post.Published.Equal(time.UnixMilli(50)) {
			t.Errorf("Position %d: published %v not truncated to the millisecond", i, post.Published)
		}
	}
	if feed.Next != "50" {
		t.Errorf("Expected continuation cursor 50, got %q", feed.Next)
	}

	rest, err := fc.FollowingFeed(ctx, following, 1, ParseFeedCursor(feed.Next, time.Now()))
	if err != nil {
		t.Fatalf("FollowingFeed continuation failed: %v", err)
	}
	if got := publishedMillis(t, rest); len(got) != 1 || got[0] != 30 {
		t.Errorf("Continuation page should hold exactly the post at 30, got %v", got)
	}
}
