// Package feed defines the social-feed values the statistics engine consumes.
//
// This package enables infographic to:
// - Represent feed owners and likers by stable numeric identity
// - Carry posts with optional author and timestamp
// - Decide whether a post belongs to the feed owner
package feed

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownPostType is returned when a post type is not one of the known values.
var ErrUnknownPostType = errors.New("unknown post type")

// PostType identifies the kind of content a post carries.
type PostType string

const (
	PostTypeLink   PostType = "LINK"
	PostTypeStatus PostType = "STATUS"
	PostTypePhoto  PostType = "PHOTO"
	PostTypeVideo  PostType = "VIDEO"
	PostTypeOffer  PostType = "OFFER"
	PostTypeEvent  PostType = "EVENT"
)

// PostTypes lists every known post type.
var PostTypes = []PostType{
	PostTypeLink,
	PostTypeStatus,
	PostTypePhoto,
	PostTypeVideo,
	PostTypeOffer,
	PostTypeEvent,
}

// ParsePostType parses a post type case-insensitively.
func ParsePostType(s string) (PostType, error) {
	t := PostType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range PostTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPostType, s)
}

// User is a feed participant. Two users are the same entity when their IDs match.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Is reports whether u and other are the same user, ignoring the name.
func (u User) Is(other User) bool {
	return u.ID == other.ID
}

// Key returns the identity used when users are tallied.
func (u User) Key() int64 {
	return u.ID
}

// Post is a single feed story.
type Post struct {
	ID         string     `json:"id"`
	Type       PostType   `json:"type"`
	Author     *User      `json:"author,omitempty"`
	Message    string     `json:"message"`
	StatusType string     `json:"status_type"`
	Likes      []User     `json:"likes"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// IsOwnedBy reports whether the post was written by owner.
// Posts without an author belong to nobody.
func (p Post) IsOwnedBy(owner User) bool {
	return p.Author != nil && p.Author.Is(owner)
}
