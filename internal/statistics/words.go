package statistics

import (
	"fmt"
	"html"
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

const (
	// TopWordsShown is the number of words laid out in the word cloud.
	TopWordsShown = 15
	// MinWordLength is the shortest token counted as a word.
	MinWordLength = 4
	// MaxEmphasis is the tier given to the most used word.
	MaxEmphasis = 5
)

var wordFinder = regexp.MustCompile(`(?i)\b[a-z]+\b`)

// Words returns the ASCII words of message that are at least MinWordLength long.
func Words(message string) []string {
	var out []string
	for _, word := range wordFinder.FindAllString(message, -1) {
		if len(word) < MinWordLength {
			continue
		}
		out = append(out, word)
	}
	return out
}

// TopWordsCollector ranks the words the owner uses in their own posts.
// Counting ignores case; a word is reported with the spelling first seen.
type TopWordsCollector struct {
	// Shuffler lays out the word cloud. Nil uses the global math/rand/v2 source.
	Shuffler Shuffler
}

func (TopWordsCollector) Kind() Kind { return KindTopWords }

func (c TopWordsCollector) Collect(owner feed.User, posts []feed.Post) (Result, error) {
	words := newTally[string, string]()
	for _, post := range posts {
		if !post.IsOwnedBy(owner) {
			continue
		}
		for _, word := range Words(post.Message) {
			words.add(strings.ToLower(word), word)
		}
	}

	if words.len() < TopWordsShown {
		return nil, &InsufficientDataError{Kind: KindTopWords, Have: words.len(), Need: TopWordsShown}
	}

	ranking := words.ranking()
	ranked := make([]WordCount, 0, len(ranking))
	for _, r := range ranking {
		ranked = append(ranked, WordCount{Word: r.value, Count: r.count})
	}

	cloud := Emphasize(ranked[:TopWordsShown])
	shuffler := c.Shuffler
	if shuffler == nil {
		shuffler = globalShuffler{}
	}
	shuffler.Shuffle(len(cloud), func(i, j int) {
		cloud[i], cloud[j] = cloud[j], cloud[i]
	})

	return TopWords{Ranked: ranked, Cloud: cloud}, nil
}

// WordCount is a word and how many times the owner used it.
type WordCount struct {
	Word  string
	Count int
}

// CloudWord is a ranked word tagged with its emphasis tier.
type CloudWord struct {
	WordCount
	Emphasis int
}

// Class returns the CSS class of the word: "vvvvv-popular" down to "popular".
func (w CloudWord) Class() string {
	if w.Emphasis <= 0 {
		return "popular"
	}
	return strings.Repeat("v", w.Emphasis) + "-popular"
}

// Emphasize tags ranked words with emphasis tiers. The first word gets
// MaxEmphasis and every strict drop in count lowers the tier by one, down to 0.
func Emphasize(ranked []WordCount) []CloudWord {
	out := make([]CloudWord, 0, len(ranked))
	emphasis := MaxEmphasis
	for i, w := range ranked {
		if i > 0 && w.Count < ranked[i-1].Count && emphasis > 0 {
			emphasis--
		}
		out = append(out, CloudWord{WordCount: w, Emphasis: emphasis})
	}
	return out
}

// TopWords holds every counted word by rank and the shuffled word cloud.
type TopWords struct {
	Ranked []WordCount
	Cloud  []CloudWord
}

func (r TopWords) Kind() Kind { return KindTopWords }

// TopWord returns the most used word.
func (r TopWords) TopWord() string {
	if len(r.Ranked) == 0 {
		return ""
	}
	return r.Ranked[0].Word
}

type topWordsInfographic struct {
	HTML    string `json:"html"`
	TopWord string `json:"topword"`
}

func (r TopWords) Infographic() (any, error) {
	if len(r.Cloud) < TopWordsShown {
		return nil, &InsufficientDataError{Kind: KindTopWords, Have: len(r.Cloud), Need: TopWordsShown}
	}
	var b strings.Builder
	for _, w := range r.Cloud {
		fmt.Fprintf(&b, `<li class="%s"><a href="#">%s</a></li>`, w.Class(), html.EscapeString(w.Word))
	}
	return topWordsInfographic{HTML: b.String(), TopWord: r.TopWord()}, nil
}

type globalShuffler struct{}

func (globalShuffler) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}
