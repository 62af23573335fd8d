package statistics

import (
	"time"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

const (
	daysPerWeek   = 7
	monthsPerYear = 12

	monthlyColor  = "#3a5897"
	monthlyStride = 11
	monthlyMaxX   = 120
)

// DailyPostFrequencyCollector counts the owner's posts per day of the week.
type DailyPostFrequencyCollector struct {
	// Location is the time zone weekdays are taken in. Nil means UTC.
	Location *time.Location
}

func (c DailyPostFrequencyCollector) Kind() Kind { return KindDailyPostFrequency }

func (c DailyPostFrequencyCollector) Collect(owner feed.User, posts []feed.Post) (Result, error) {
	var counts [daysPerWeek]int
	for _, post := range ownDatedPosts(owner, posts) {
		counts[post.CreatedAt.In(location(c.Location)).Weekday()]++
	}
	return DailyPostFrequency{Counts: counts}, nil
}

// DailyPostFrequency holds post counts indexed by time.Weekday (0 is Sunday).
type DailyPostFrequency struct {
	Counts [daysPerWeek]int
}

func (r DailyPostFrequency) Kind() Kind { return KindDailyPostFrequency }

// Total returns the number of counted posts.
func (r DailyPostFrequency) Total() int {
	return sum(r.Counts[:])
}

type dailyInfographic struct {
	Frequency []dayCount `json:"frequency"`
}

type dayCount struct {
	DayOfWeek string `json:"dayofweek"`
	Count     int    `json:"count"`
}

// mondayFirst is the weekday order of the published frequency.
var mondayFirst = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func (r DailyPostFrequency) Infographic() (any, error) {
	out := dailyInfographic{Frequency: make([]dayCount, 0, daysPerWeek)}
	for _, day := range mondayFirst {
		out.Frequency = append(out.Frequency, dayCount{
			DayOfWeek: day.String()[:3],
			Count:     r.Counts[day],
		})
	}
	return out, nil
}

// MonthlyPostFrequencyCollector counts the owner's posts per month of the year.
type MonthlyPostFrequencyCollector struct {
	// Location is the time zone months are taken in. Nil means UTC.
	Location *time.Location
}

func (c MonthlyPostFrequencyCollector) Kind() Kind { return KindMonthlyPostFrequency }

func (c MonthlyPostFrequencyCollector) Collect(owner feed.User, posts []feed.Post) (Result, error) {
	var counts [monthsPerYear]int
	for _, post := range ownDatedPosts(owner, posts) {
		counts[post.CreatedAt.In(location(c.Location)).Month()-1]++
	}
	return MonthlyPostFrequency{Counts: counts}, nil
}

// MonthlyPostFrequency holds post counts where index 0 is January.
type MonthlyPostFrequency struct {
	Counts [monthsPerYear]int
}

func (r MonthlyPostFrequency) Kind() Kind { return KindMonthlyPostFrequency }

// Total returns the number of counted posts.
func (r MonthlyPostFrequency) Total() int {
	return sum(r.Counts[:])
}

type monthlyInfographic struct {
	Frequency []monthPoint `json:"frequency"`
	Color     string       `json:"color"`
}

type monthPoint struct {
	Value int `json:"value"`
	X     int `json:"x"`
}

func (r MonthlyPostFrequency) Infographic() (any, error) {
	out := monthlyInfographic{
		Frequency: make([]monthPoint, 0, monthsPerYear),
		Color:     monthlyColor,
	}
	for i, count := range r.Counts {
		out.Frequency = append(out.Frequency, monthPoint{
			Value: count,
			X:     min(i*monthlyStride, monthlyMaxX),
		})
	}
	return out, nil
}

// ownDatedPosts returns the owner's posts that carry a creation time.
func ownDatedPosts(owner feed.User, posts []feed.Post) []feed.Post {
	var out []feed.Post
	for _, post := range posts {
		if !post.IsOwnedBy(owner) || post.CreatedAt == nil {
			continue
		}
		out = append(out, post)
	}
	return out
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
