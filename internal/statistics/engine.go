package statistics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gauthierbraillon/infographic/internal/feed"
)

// EngineOption configures the Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	location   *time.Location
	shuffler   Shuffler
	collectors []Collector
}

// WithLocation sets the time zone posts are bucketed in.
func WithLocation(loc *time.Location) EngineOption {
	return func(o *engineOptions) {
		o.location = loc
	}
}

// WithShuffler sets the source used to lay out the word cloud.
func WithShuffler(s Shuffler) EngineOption {
	return func(o *engineOptions) {
		o.shuffler = s
	}
}

// WithCollectors replaces the default collectors. When two collectors share a
// Kind only the first one runs, so every key appears once in the envelope.
func WithCollectors(collectors ...Collector) EngineOption {
	return func(o *engineOptions) {
		o.collectors = collectors
	}
}

// Engine runs a set of collectors over one feed.
type Engine struct {
	collectors []Collector
}

// NewEngine creates an Engine running every statistic in Kinds order.
func NewEngine(opts ...EngineOption) *Engine {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	collectors := uniqueKinds(o.collectors)
	if collectors == nil {
		collectors = []Collector{
			TopFriendsCollector{},
			PostTypesCollector{},
			DailyPostFrequencyCollector{Location: o.location},
			MonthlyPostFrequencyCollector{Location: o.location},
			TopWordsCollector{Shuffler: o.shuffler},
		}
	}
	return &Engine{collectors: collectors}
}

func uniqueKinds(collectors []Collector) []Collector {
	if collectors == nil {
		return nil
	}
	seen := make(map[Kind]bool, len(collectors))
	out := make([]Collector, 0, len(collectors))
	for _, c := range collectors {
		if seen[c.Kind()] {
			continue
		}
		seen[c.Kind()] = true
		out = append(out, c)
	}
	return out
}

// Run collects every statistic for owner. Collectors run concurrently and a
// failing collector only fails its own key. An empty feed yields an empty
// envelope without running any collector.
func (e *Engine) Run(ctx context.Context, owner feed.User, posts []feed.Post) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := &Envelope{outcomes: make(map[Kind]Outcome)}
	if len(posts) == 0 {
		return env, nil
	}

	outcomes := make([]Outcome, len(e.collectors))
	var g errgroup.Group
	for i, c := range e.collectors {
		g.Go(func() error {
			outcomes[i] = collect(c, owner, posts)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, o := range outcomes {
		env.order = append(env.order, o.Kind)
		env.outcomes[o.Kind] = o
	}
	return env, nil
}

// collect runs one collector; a panic becomes that collector's error.
func collect(c Collector, owner feed.User, posts []feed.Post) (o Outcome) {
	o.Kind = c.Kind()
	defer func() {
		if r := recover(); r != nil {
			o.Result = nil
			o.Err = fmt.Errorf("%s: %w: %v", o.Kind, ErrCollectorPanicked, r)
		}
	}()
	o.Result, o.Err = c.Collect(owner, posts)
	return o
}

// Outcome is the result or the error of one collector.
type Outcome struct {
	Kind   Kind
	Result Result
	Err    error
}

// Envelope gathers the outcome of every collector of a run.
type Envelope struct {
	order    []Kind
	outcomes map[Kind]Outcome
}

// Empty reports whether no collector ran.
func (e *Envelope) Empty() bool {
	return len(e.order) == 0
}

// Kinds returns the collected statistics in publication order.
func (e *Envelope) Kinds() []Kind {
	return append([]Kind(nil), e.order...)
}

// Outcome returns the outcome collected for kind.
func (e *Envelope) Outcome(kind Kind) (Outcome, bool) {
	o, ok := e.outcomes[kind]
	return o, ok
}

type errorInfographic struct {
	Error string `json:"error"`
}

// MarshalJSON writes one key per statistic in publication order. A statistic
// that failed is published as {"error": "..."}.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kind := range e.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encode(string(kind))
		if err != nil {
			return nil, err
		}
		value, err := encode(infographic(e.outcomes[kind]))
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func infographic(o Outcome) any {
	if o.Err != nil {
		return errorInfographic{Error: o.Err.Error()}
	}
	if o.Result == nil {
		return errorInfographic{Error: fmt.Sprintf("%s: no result", o.Kind)}
	}
	v, err := o.Result.Infographic()
	if err != nil {
		return errorInfographic{Error: err.Error()}
	}
	return v
}

// encode marshals v without escaping HTML so the word cloud markup stays readable.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
