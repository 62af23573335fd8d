package statistics

import (
	"time"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

var (
	owner = feed.User{ID: 1, Name: "Owner"}
	alice = feed.User{ID: 2, Name: "Alice"}
	bob   = feed.User{ID: 3, Name: "Bob"}
	carol = feed.User{ID: 4, Name: "Carol"}
	dave  = feed.User{ID: 5, Name: "Dave"}
	erin  = feed.User{ID: 6, Name: "Erin"}
)

// fifteenWords is a message with exactly fifteen distinct qualifying words.
const fifteenWords = "alpha bravo charlie delta echo foxtrot golf hotel india juliett kilo lima mike november oscar"

func at(layout string) *time.Time {
	t, err := time.Parse(time.RFC3339, layout)
	if err != nil {
		panic(err)
	}
	return &t
}

func postBy(author *feed.User, postType feed.PostType, message string, created *time.Time, likes ...feed.User) feed.Post {
	return feed.Post{
		ID:        "post",
		Type:      postType,
		Author:    author,
		Message:   message,
		Likes:     likes,
		CreatedAt: created,
	}
}

func ownPost(message string, created *time.Time, likes ...feed.User) feed.Post {
	o := owner
	return postBy(&o, feed.PostTypeStatus, message, created, likes...)
}

func friendPost(author feed.User, message string, likes ...feed.User) feed.Post {
	return postBy(&author, feed.PostTypeStatus, message, at("2024-03-05T10:00:00Z"), likes...)
}

// reverseShuffler reverses the order instead of shuffling.
type reverseShuffler struct{}

func (reverseShuffler) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n/2; i++ {
		swap(i, n-1-i)
	}
}
