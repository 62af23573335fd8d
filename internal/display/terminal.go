// Package display provides terminal output formatting for infographic.
package display

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gauthierbraillon/infographic/internal/feed"
	"github.com/gauthierbraillon/infographic/internal/statistics"
	"github.com/gauthierbraillon/infographic/internal/store"
)

const (
	separator   = " • "
	barWidth    = 30
	barGlyph    = "█"
	headingRule = "─"
)

var headings = map[statistics.Kind]string{
	statistics.KindTopFriends:           "Top friends",
	statistics.KindPostTypes:            "Post types",
	statistics.KindDailyPostFrequency:   "Posts per weekday",
	statistics.KindMonthlyPostFrequency: "Posts per month",
	statistics.KindTopWords:             "Top words",
}

var shownPostTypes = []struct {
	postType feed.PostType
	label    string
}{
	{feed.PostTypeStatus, "status updates"},
	{feed.PostTypePhoto, "photos"},
	{feed.PostTypeLink, "shared links"},
	{feed.PostTypeVideo, "videos"},
}

// TerminalFormatter formats statistics for terminal display.
type TerminalFormatter struct{}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{}
}

// FormatEnvelope renders every statistic of the envelope, in envelope order.
func (f *TerminalFormatter) FormatEnvelope(env *statistics.Envelope) string {
	if env == nil || env.Empty() {
		return "No posts to analyze.\n"
	}

	var sections []string
	for _, kind := range env.Kinds() {
		o, _ := env.Outcome(kind)
		sections = append(sections, f.FormatOutcome(o))
	}
	return strings.Join(sections, "\n")
}

// FormatOutcome renders one statistic, or why it could not be computed.
func (f *TerminalFormatter) FormatOutcome(o statistics.Outcome) string {
	var b strings.Builder
	b.WriteString(heading(o.Kind))

	if o.Err != nil {
		var insufficient *statistics.InsufficientDataError
		if errors.As(o.Err, &insufficient) {
			fmt.Fprintf(&b, "  Not enough data yet (%d of %d needed).\n", insufficient.Have, insufficient.Need)
		} else {
			fmt.Fprintf(&b, "  Unavailable: %v\n", o.Err)
		}
		return b.String()
	}

	switch r := o.Result.(type) {
	case statistics.TopFriends:
		f.writeFriends(&b, r)
	case statistics.PostTypes:
		f.writePostTypes(&b, r)
	case statistics.DailyPostFrequency:
		f.writeDaily(&b, r)
	case statistics.MonthlyPostFrequency:
		f.writeMonthly(&b, r)
	case statistics.TopWords:
		f.writeWords(&b, r)
	default:
		fmt.Fprintf(&b, "  %v\n", o.Result)
	}
	return b.String()
}

func heading(kind statistics.Kind) string {
	title, ok := headings[kind]
	if !ok {
		title = string(kind)
	}
	return title + "\n" + strings.Repeat(headingRule, len([]rune(title))) + "\n"
}

func (f *TerminalFormatter) writeFriends(b *strings.Builder, r statistics.TopFriends) {
	for i, friend := range r.Friends {
		if i == statistics.TopFriendsShown {
			break
		}
		fmt.Fprintf(b, "  %d. %s%s%s\n", i+1, friend.User.Name, separator, pluralize(friend.Likes, "like"))
	}
}

func (f *TerminalFormatter) writePostTypes(b *strings.Builder, r statistics.PostTypes) {
	rows := make([]row, 0, len(shownPostTypes))
	for _, t := range shownPostTypes {
		rows = append(rows, row{label: t.label, value: r.Count(t.postType)})
	}
	writeBars(b, rows)
}

func (f *TerminalFormatter) writeDaily(b *strings.Builder, r statistics.DailyPostFrequency) {
	rows := make([]row, 0, 7)
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		rows = append(rows, row{label: day.String()[:3], value: r.Counts[day]})
	}
	writeBars(b, rows)
}

func (f *TerminalFormatter) writeMonthly(b *strings.Builder, r statistics.MonthlyPostFrequency) {
	rows := make([]row, 0, len(r.Counts))
	for i, count := range r.Counts {
		rows = append(rows, row{label: time.Month(i + 1).String()[:3], value: count})
	}
	writeBars(b, rows)
}

func (f *TerminalFormatter) writeWords(b *strings.Builder, r statistics.TopWords) {
	if top := r.TopWord(); top != "" {
		fmt.Fprintf(b, "  Most used: %s\n", top)
	}
	words := make([]string, 0, len(r.Ranked))
	for i, w := range r.Ranked {
		if i == statistics.TopWordsShown {
			break
		}
		words = append(words, fmt.Sprintf("%s (%d)", w.Word, w.Count))
	}
	if len(words) > 0 {
		fmt.Fprintf(b, "  %s\n", strings.Join(words, separator))
	}
}

type row struct {
	label string
	value int
}

// writeBars draws rows as horizontal bars scaled to the largest value.
func writeBars(b *strings.Builder, rows []row) {
	maxValue, labelWidth := 0, 0
	for _, r := range rows {
		maxValue = max(maxValue, r.value)
		labelWidth = max(labelWidth, len(r.label))
	}
	for _, r := range rows {
		width := 0
		if maxValue > 0 {
			width = r.value * barWidth / maxValue
		}
		if r.value > 0 && width == 0 {
			width = 1
		}
		fmt.Fprintf(b, "  %-*s %s %d\n", labelWidth, r.label, strings.Repeat(barGlyph, width), r.value)
	}
}

// FormatHistory lists saved snapshots, newest first.
func (f *TerminalFormatter) FormatHistory(snaps []store.Snapshot) string {
	if len(snaps) == 0 {
		return "No saved statistics yet. Run 'infographic stats --save' first.\n"
	}

	var lines []string
	for _, s := range snaps {
		lines = append(lines, fmt.Sprintf("#%d%s%s%s%s", s.ID, separator,
			f.FormatTimestamp(s.CreatedAt), separator, pluralize(s.PostCount, "post")))
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour") + " ago"
	case diff < 7*24*time.Hour:
		return pluralize(int(diff.Hours()/24), "day") + " ago"
	default:
		return t.Format("Jan 2, 2006")
	}
}

// pluralize returns "N unit" or "N units" based on count.
func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
