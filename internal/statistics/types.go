// Package statistics turns a feed owner's posts into infographic statistics.
//
// This package enables infographic to:
// - Bucket the owner's posts by weekday and by month
// - Count the owner's posts per post type
// - Rank friends by the likes they left on the feed
// - Rank the owner's most used words and lay them out as a word cloud
// - Run every collector over one feed and assemble a single JSON envelope
package statistics

import (
	"github.com/gauthierbraillon/infographic/internal/feed"
)

// Kind identifies a statistic and is the key it is published under.
type Kind string

const (
	KindTopFriends           Kind = "TOP_FRIENDS"
	KindPostTypes            Kind = "POST_TYPES"
	KindDailyPostFrequency   Kind = "DAILY_POST_FREQUENCY"
	KindMonthlyPostFrequency Kind = "MONTHLY_POST_FREQUENCY"
	KindTopWords             Kind = "TOP_WORDS"
)

// Kinds lists every statistic in envelope order.
var Kinds = []Kind{
	KindTopFriends,
	KindPostTypes,
	KindDailyPostFrequency,
	KindMonthlyPostFrequency,
	KindTopWords,
}

// Collector computes one statistic from a feed.
// Implementations must not mutate posts or keep state between calls.
type Collector interface {
	Kind() Kind
	Collect(owner feed.User, posts []feed.Post) (Result, error)
}

// Result is the output of a Collector.
type Result interface {
	Kind() Kind
	// Infographic returns the value published for this statistic in the envelope.
	Infographic() (any, error)
}

// Shuffler permutes n elements through swap. *math/rand/v2.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}
