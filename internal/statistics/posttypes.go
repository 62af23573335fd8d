package statistics

import (
	"github.com/gauthierbraillon/infographic/internal/feed"
)

// PostTypesCollector counts the owner's posts per post type.
type PostTypesCollector struct{}

func (PostTypesCollector) Kind() Kind { return KindPostTypes }

func (PostTypesCollector) Collect(owner feed.User, posts []feed.Post) (Result, error) {
	counts := make(map[feed.PostType]int)
	for _, post := range posts {
		if !post.IsOwnedBy(owner) {
			continue
		}
		counts[post.Type]++
	}
	return PostTypes{Counts: counts}, nil
}

// PostTypes holds post counts per type. Missing types count zero.
type PostTypes struct {
	Counts map[feed.PostType]int
}

func (r PostTypes) Kind() Kind { return KindPostTypes }

// Count returns the number of posts of type t.
func (r PostTypes) Count(t feed.PostType) int {
	return r.Counts[t]
}

type postTypeStyle struct {
	postType    feed.PostType
	description string
	shortName   string
	color       string
	colorClass  string
}

// renderedPostTypes are the types shown on the infographic, in display order.
// Offers and events are counted but never shown.
var renderedPostTypes = []postTypeStyle{
	{feed.PostTypeStatus, "Status Update", "status updates", "#3b5998", "blue"},
	{feed.PostTypePhoto, "Image Post", "photos", "#5bc0bd", "green"},
	{feed.PostTypeLink, "Shared Link", "shared links", "#2ebaeb", "blue-light"},
	{feed.PostTypeVideo, "Video Post", "videos", "#f08a4b", "orange"},
}

type postTypesInfographic struct {
	Types []postTypeEntry `json:"types"`
}

type postTypeEntry struct {
	Value       int    `json:"value"`
	Description string `json:"description"`
	ShortName   string `json:"shortname"`
	Color       string `json:"color"`
	ColorClass  string `json:"colorclass"`
}

func (r PostTypes) Infographic() (any, error) {
	out := postTypesInfographic{Types: make([]postTypeEntry, 0, len(renderedPostTypes))}
	for _, style := range renderedPostTypes {
		out.Types = append(out.Types, postTypeEntry{
			Value:       r.Count(style.postType),
			Description: style.description,
			ShortName:   style.shortName,
			Color:       style.color,
			ColorClass:  style.colorClass,
		})
	}
	return out, nil
}
