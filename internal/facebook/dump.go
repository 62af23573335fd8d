package facebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

// dumpResponse is a saved feed: a Graph API feed page plus the owner's
// profile under "owner".
type dumpResponse struct {
	Owner *userResponse  `json:"owner"`
	Data  []postResponse `json:"data"`
}

// ReadDump parses a saved Graph API feed and returns its owner and stories,
// applying the same conversion rules as FetchFeed.
func ReadDump(r io.Reader) (feed.User, []feed.Post, error) {
	var dump dumpResponse
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return feed.User{}, nil, fmt.Errorf("failed to parse feed dump: %w", err)
	}
	if dump.Owner == nil {
		return feed.User{}, nil, errors.New("feed dump has no owner - add an \"owner\": {\"id\": ..., \"name\": ...} object")
	}
	owner, ok := dump.Owner.toUser()
	if !ok {
		return feed.User{}, nil, fmt.Errorf("feed dump owner has invalid id %q", dump.Owner.ID)
	}

	posts := make([]feed.Post, 0, len(dump.Data))
	for _, item := range dump.Data {
		if post, ok := item.toPost(); ok {
			posts = append(posts, post)
		}
	}
	return owner, posts, nil
}
