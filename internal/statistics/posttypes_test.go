package statistics

import (
	"testing"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

func TestAC120_PostTypes_CountsOwnPostsPerType(t *testing.T) {
	o := owner
	posts := []feed.Post{
		postBy(&o, feed.PostTypeStatus, "", nil),
		postBy(&o, feed.PostTypeStatus, "", nil),
		postBy(&o, feed.PostTypePhoto, "", nil),
		postBy(&o, feed.PostTypeEvent, "", nil),
		friendPost(alice, "a friend's status"),
		postBy(nil, feed.PostTypeVideo, "", nil),
	}

	result, err := PostTypesCollector{}.Collect(owner, posts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	types := result.(PostTypes)
	if types.Count(feed.PostTypeStatus) != 2 {
		t.Errorf("user should see 2 status updates, got %d", types.Count(feed.PostTypeStatus))
	}
	if types.Count(feed.PostTypePhoto) != 1 {
		t.Errorf("user should see 1 photo, got %d", types.Count(feed.PostTypePhoto))
	}
	if types.Count(feed.PostTypeEvent) != 1 {
		t.Errorf("events should still be counted, got %d", types.Count(feed.PostTypeEvent))
	}
	if types.Count(feed.PostTypeVideo) != 0 {
		t.Errorf("posts without an author should not be counted, got %d videos", types.Count(feed.PostTypeVideo))
	}
}

func TestAC121_PostTypes_PublishesFourTypesInFixedOrder(t *testing.T) {
	types := PostTypes{Counts: map[feed.PostType]int{
		feed.PostTypeStatus: 4,
		feed.PostTypeVideo:  1,
		feed.PostTypeOffer:  9,
	}}

	v, err := types.Infographic()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []postTypeEntry{
		{4, "Status Update", "status updates", "#3b5998", "blue"},
		{0, "Image Post", "photos", "#5bc0bd", "green"},
		{0, "Shared Link", "shared links", "#2ebaeb", "blue-light"},
		{1, "Video Post", "videos", "#f08a4b", "orange"},
	}
	got := v.(postTypesInfographic).Types
	if len(got) != len(want) {
		t.Fatalf("user should see exactly 4 post types, got %d", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: want %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestAC122_PostTypes_RenderedSumNeverExceedsOwnPosts(t *testing.T) {
	o := owner
	var posts []feed.Post
	for _, pt := range feed.PostTypes {
		posts = append(posts, postBy(&o, pt, "", nil))
	}

	result, _ := PostTypesCollector{}.Collect(owner, posts)
	v, _ := result.Infographic()

	rendered := 0
	for _, entry := range v.(postTypesInfographic).Types {
		rendered += entry.Value
	}
	if rendered > len(posts) {
		t.Errorf("rendered types (%d) should not exceed own posts (%d)", rendered, len(posts))
	}
	if rendered != len(posts)-2 {
		t.Errorf("offers and events should be the only posts left out, rendered %d of %d", rendered, len(posts))
	}
}
