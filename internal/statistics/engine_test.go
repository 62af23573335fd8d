package statistics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

// richFeed has enough friends and words for every statistic.
func richFeed() []feed.Post {
	o := owner
	return []feed.Post{
		ownPost(fifteenWords, at("2024-01-01T09:00:00Z"), alice, bob),
		postBy(&o, feed.PostTypePhoto, "golf hotel", at("2024-02-03T09:00:00Z"), carol),
		postBy(&o, feed.PostTypeLink, "", nil, dave, alice),
		friendPost(erin, "erin says hello", alice),
	}
}

func TestAC200_Engine_EmptyFeedShortCircuits(t *testing.T) {
	called := false
	engine := NewEngine(WithCollectors(collectorFunc{kind: KindTopWords, fn: func() (Result, error) {
		called = true
		return nil, nil
	}}))

	env, err := engine.Run(context.Background(), owner, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !env.Empty() {
		t.Error("user with an empty feed should get an empty result set")
	}
	if called {
		t.Error("collectors should not run for an empty feed")
	}
	data, _ := json.Marshal(env)
	if string(data) != "{}" {
		t.Errorf("empty envelope should encode as {}, got %s", data)
	}
}

func TestAC201_Engine_EnvelopeHasFiveKeysInOrder(t *testing.T) {
	env, err := NewEngine(WithShuffler(reverseShuffler{})).Run(context.Background(), owner, richFeed())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("envelope should encode: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("envelope should be valid JSON: %v", err)
	}
	if len(decoded) != 5 {
		t.Errorf("user should get exactly 5 statistics, got %d", len(decoded))
	}

	last := -1
	for _, kind := range Kinds {
		pos := strings.Index(string(data), `"`+string(kind)+`":`)
		if pos < 0 {
			t.Fatalf("envelope is missing %s", kind)
		}
		if pos < last {
			t.Errorf("%s is out of order", kind)
		}
		last = pos
	}
}

func TestAC202_Engine_ShapesMatchPublishedContract(t *testing.T) {
	env, _ := NewEngine().Run(context.Background(), owner, richFeed())
	data, _ := json.Marshal(env)

	var decoded struct {
		TopFriends struct {
			Friends []struct {
				ImgSrc string `json:"imgSrc"`
				Likes  int    `json:"likes"`
				Name   string `json:"name"`
				Color  string `json:"color"`
			} `json:"friends"`
		} `json:"TOP_FRIENDS"`
		PostTypes struct {
			Types []struct {
				Value      int    `json:"value"`
				ShortName  string `json:"shortname"`
				ColorClass string `json:"colorclass"`
			} `json:"types"`
		} `json:"POST_TYPES"`
		Daily struct {
			Frequency []struct {
				DayOfWeek string `json:"dayofweek"`
				Count     int    `json:"count"`
			} `json:"frequency"`
		} `json:"DAILY_POST_FREQUENCY"`
		Monthly struct {
			Frequency []struct {
				Value int `json:"value"`
				X     int `json:"x"`
			} `json:"frequency"`
			Color string `json:"color"`
		} `json:"MONTHLY_POST_FREQUENCY"`
		TopWords struct {
			HTML    string `json:"html"`
			TopWord string `json:"topword"`
		} `json:"TOP_WORDS"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("envelope should decode: %v", err)
	}

	if len(decoded.TopFriends.Friends) != 4 || decoded.TopFriends.Friends[0].Name != "Alice" {
		t.Errorf("user should see 4 friends led by Alice, got %+v", decoded.TopFriends.Friends)
	}
	if decoded.TopFriends.Friends[0].Likes != 3 {
		t.Errorf("Alice should have 3 likes, got %d", decoded.TopFriends.Friends[0].Likes)
	}
	if len(decoded.PostTypes.Types) != 4 || decoded.PostTypes.Types[0].Value != 1 || decoded.PostTypes.Types[2].Value != 1 {
		t.Errorf("unexpected post types: %+v", decoded.PostTypes.Types)
	}
	if len(decoded.Daily.Frequency) != 7 || decoded.Daily.Frequency[0].DayOfWeek != "Mon" || decoded.Daily.Frequency[0].Count != 1 {
		t.Errorf("unexpected daily frequency: %+v", decoded.Daily.Frequency)
	}
	if len(decoded.Monthly.Frequency) != 12 || decoded.Monthly.Frequency[1].Value != 1 || decoded.Monthly.Color != "#3a5897" {
		t.Errorf("unexpected monthly frequency: %+v", decoded.Monthly)
	}
	if decoded.TopWords.TopWord != "golf" {
		t.Errorf("user should see golf as top word, got %q", decoded.TopWords.TopWord)
	}
	if !strings.Contains(decoded.TopWords.HTML, `<a href="#">golf</a>`) {
		t.Errorf("word cloud should contain golf, got %s", decoded.TopWords.HTML)
	}
}

func TestAC203_Engine_InsufficientFriendsOnlyFailsTheirKey(t *testing.T) {
	posts := []feed.Post{
		ownPost(fifteenWords, at("2024-01-01T09:00:00Z"), alice, bob, carol),
	}

	env, err := NewEngine().Run(context.Background(), owner, posts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	friends, ok := env.Outcome(KindTopFriends)
	if !ok || !errors.Is(friends.Err, ErrInsufficientData) {
		t.Fatalf("user with 3 likers should get insufficient data for top friends, got %+v", friends)
	}
	for _, kind := range Kinds[1:] {
		o, ok := env.Outcome(kind)
		if !ok || o.Err != nil || o.Result == nil {
			t.Errorf("%s should still be reported, got %+v", kind, o)
		}
	}

	data, _ := json.Marshal(env)
	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("envelope should decode: %v", err)
	}
	if msg, _ := decoded["TOP_FRIENDS"]["error"].(string); !strings.Contains(msg, "insufficient data") {
		t.Errorf("top friends should publish the error, got %v", decoded["TOP_FRIENDS"])
	}
	if _, ok := decoded["DAILY_POST_FREQUENCY"]["frequency"]; !ok {
		t.Error("daily frequency should still be published")
	}
}

func TestAC204_Engine_CancelledContextDiscardsResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	env, err := NewEngine().Run(ctx, owner, richFeed())

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if env != nil {
		t.Error("no envelope should be returned for a cancelled request")
	}
}

func TestAC205_Engine_RunsCustomCollectors(t *testing.T) {
	engine := NewEngine(WithCollectors(
		PostTypesCollector{},
		collectorFunc{kind: KindTopWords, fn: func() (Result, error) {
			return nil, errors.New("boom")
		}},
	))

	env, err := engine.Run(context.Background(), owner, richFeed())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := env.Kinds()
	if len(kinds) != 2 || kinds[0] != KindPostTypes || kinds[1] != KindTopWords {
		t.Errorf("envelope should follow collector order, got %v", kinds)
	}
	data, _ := json.Marshal(env)
	if !strings.Contains(string(data), `"TOP_WORDS":{"error":"boom"}`) {
		t.Errorf("failed collector should publish its error, got %s", data)
	}
}

type collectorFunc struct {
	kind Kind
	fn   func() (Result, error)
}

func (c collectorFunc) Kind() Kind { return c.kind }

func (c collectorFunc) Collect(feed.User, []feed.Post) (Result, error) {
	return c.fn()
}

func TestAC206_Engine_DuplicateKindsRunOnce(t *testing.T) {
	calls := 0
	engine := NewEngine(WithCollectors(
		PostTypesCollector{},
		collectorFunc{kind: KindPostTypes, fn: func() (Result, error) {
			calls++
			return nil, errors.New("shadowed")
		}},
		TopFriendsCollector{},
	))

	env, err := engine.Run(context.Background(), owner, richFeed())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	kinds := env.Kinds()
	if len(kinds) != 2 || kinds[0] != KindPostTypes || kinds[1] != KindTopFriends {
		t.Errorf("each statistic should appear once, got %v", kinds)
	}
	if calls != 0 {
		t.Error("a second collector for the same statistic should not run")
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(string(data), `"POST_TYPES"`); n != 1 {
		t.Errorf("envelope should publish POST_TYPES once, got %d in %s", n, data)
	}
}

func TestAC207_Engine_PanickingCollectorOnlyFailsItsKey(t *testing.T) {
	engine := NewEngine(WithCollectors(
		PostTypesCollector{},
		collectorFunc{kind: KindTopWords, fn: func() (Result, error) {
			panic("index out of range")
		}},
	))

	env, err := engine.Run(context.Background(), owner, richFeed())
	if err != nil {
		t.Fatalf("a panicking collector should not fail the run: %v", err)
	}

	words, _ := env.Outcome(KindTopWords)
	if !errors.Is(words.Err, ErrCollectorPanicked) || !strings.Contains(words.Err.Error(), "index out of range") {
		t.Errorf("panic should become the statistic's error, got %v", words.Err)
	}
	types, _ := env.Outcome(KindPostTypes)
	if types.Err != nil || types.Result == nil {
		t.Errorf("other statistics should still be computed, got %+v", types)
	}
	data, _ := json.Marshal(env)
	if !strings.Contains(string(data), `"TOP_WORDS":{"error":"TOP_WORDS: collector panicked: index out of range"}`) {
		t.Errorf("envelope should publish the recovered panic, got %s", data)
	}
}
