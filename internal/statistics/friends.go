package statistics

import (
	"fmt"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

// TopFriendsShown is the number of friends the infographic shows.
const TopFriendsShown = 4

const avatarURLFormat = "https://graph.facebook.com/%d/picture?width=85&height=85"

// friendColors are the slot colors of the shown friends, best friend first.
var friendColors = [TopFriendsShown]string{"#3b5998", "#5bc0bd", "#f08a4b", "#1c2541"}

// TopFriendsCollector ranks users by the number of likes they left on the feed.
// Every post counts, not only the owner's; the owner's own likes do not.
type TopFriendsCollector struct{}

func (TopFriendsCollector) Kind() Kind { return KindTopFriends }

func (TopFriendsCollector) Collect(owner feed.User, posts []feed.Post) (Result, error) {
	likes := newTally[int64, feed.User]()
	for _, post := range posts {
		for _, liker := range post.Likes {
			if liker.Is(owner) {
				continue
			}
			likes.add(liker.Key(), liker)
		}
	}

	if likes.len() < TopFriendsShown {
		return nil, &InsufficientDataError{Kind: KindTopFriends, Have: likes.len(), Need: TopFriendsShown}
	}

	ranking := likes.ranking()
	friends := make([]FriendLikes, 0, len(ranking))
	for _, r := range ranking {
		friends = append(friends, FriendLikes{User: r.value, Likes: r.count})
	}
	return TopFriends{Friends: friends}, nil
}

// FriendLikes is a friend and the number of likes they contributed.
type FriendLikes struct {
	User  feed.User
	Likes int
}

// TopFriends holds every liker ranked by likes, best friend first.
type TopFriends struct {
	Friends []FriendLikes
}

func (r TopFriends) Kind() Kind { return KindTopFriends }

type topFriendsInfographic struct {
	Friends []friendEntry `json:"friends"`
}

type friendEntry struct {
	ImgSrc string `json:"imgSrc"`
	Likes  int    `json:"likes"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

func (r TopFriends) Infographic() (any, error) {
	if len(r.Friends) < TopFriendsShown {
		return nil, &InsufficientDataError{Kind: KindTopFriends, Have: len(r.Friends), Need: TopFriendsShown}
	}
	out := topFriendsInfographic{Friends: make([]friendEntry, 0, TopFriendsShown)}
	for i, f := range r.Friends[:TopFriendsShown] {
		out.Friends = append(out.Friends, friendEntry{
			ImgSrc: fmt.Sprintf(avatarURLFormat, f.User.ID),
			Likes:  f.Likes,
			Name:   f.User.Name,
			Color:  friendColors[i],
		})
	}
	return out, nil
}
