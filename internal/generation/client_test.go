package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/folioforge/internal/api"
	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/pkg/models"
)

const goodSection = "Revenue grew steadily across all regions during the year."

var clockStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// steppingClock is a fake clock that jumps forward by every timer it hands
// out, so waits complete at once while their durations are recorded.
type steppingClock struct {
	*clockwork.FakeClock
	mu     sync.Mutex
	sleeps []time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{FakeClock: clockwork.NewFakeClockAt(clockStart)}
}

func (c *steppingClock) NewTimer(d time.Duration) clockwork.Timer {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	timer := c.FakeClock.NewTimer(d)
	c.FakeClock.Advance(d)
	return timer
}

func (c *steppingClock) elapsed(t time.Time) time.Duration {
	return t.Sub(clockStart)
}

type reply struct {
	text string
	err  error
}

// scriptedBackend returns replies in order and records the clock time of each call
type scriptedBackend struct {
	clock   clockwork.Clock
	replies []reply
	calls   []time.Time
	prompts []Prompt
	onCall  func(n int)
}

func (b *scriptedBackend) Generate(ctx context.Context, p Prompt) (string, error) {
	n := len(b.calls)
	b.calls = append(b.calls, b.clock.Now())
	b.prompts = append(b.prompts, p)
	if b.onCall != nil {
		b.onCall(n)
	}
	if n >= len(b.replies) {
		return goodSection, nil
	}
	return b.replies[n].text, b.replies[n].err
}

func rateLimited() reply {
	return reply{err: &api.APIError{Kind: api.KindRateLimited, StatusCode: 429, Message: "slow down"}}
}

func transientFailure() reply {
	return reply{err: &api.APIError{Kind: api.KindTransient, StatusCode: 503, Message: "unavailable"}}
}

func testOptions() Options {
	return Options{
		MinCallDelay:        2500 * time.Millisecond,
		MaxRateLimitRetries: 5,
		MaxTransientRetries: 3,
		BaseRetryDelay:      time.Second,
		MaxBackoff:          2 * time.Minute,
		MinSectionWords:     5,
	}
}

func testTemplates() config.PromptTemplates {
	return config.PromptTemplates{
		SectionGeneration:   config.GetDefaultSectionTemplate(),
		SectionSystemPrompt: config.GetDefaultSectionSystemPrompt(),
		OutlineGeneration:   config.GetDefaultOutlineTemplate(),
		OutlineSystemPrompt: config.GetDefaultOutlineSystemPrompt(),
	}
}

func newTestClient(opts Options, replies ...reply) (*Client, *scriptedBackend, *steppingClock) {
	clock := newSteppingClock()
	backend := &scriptedBackend{clock: clock, replies: replies}
	c := NewClient(backend, opts, testTemplates(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetClock(clock)
	return c, backend, clock
}

var testSection = models.Section{Index: 4, Title: "Market Sizing (Part 2)", ParentTopic: "Market", Focus: []string{"TAM", "SAM"}, TargetLengthHint: 900}

func TestGenerateSection_RendersPrompt(t *testing.T) {
	c, backend, _ := newTestClient(testOptions())

	text, err := c.GenerateSection(context.Background(), testSection, SectionContext{
		DocumentTitle: "Series A Plan",
		TotalSections: 120,
		Previous:      []PreviousSection{{Title: "Market Sizing (Part 1)", Excerpt: "closing thoughts on demand"}},
	})
	require.NoError(t, err)
	assert.Equal(t, goodSection, text)

	require.Len(t, backend.prompts, 1)
	user := backend.prompts[0].User
	for _, want := range []string{"section 5 of 120", "Series A Plan", "- TAM", "closing thoughts on demand", "about 900 words"} {
		assert.Contains(t, user, want)
	}
	assert.Equal(t, config.GetDefaultSectionSystemPrompt(), backend.prompts[0].System)
}

func TestGenerateSection_RateLimitBackoff(t *testing.T) {
	c, backend, clock := newTestClient(testOptions(), rateLimited(), rateLimited())

	_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	require.NoError(t, err)

	assert.Len(t, backend.calls, 3)
	assert.Equal(t, []time.Duration{3 * time.Second, 9 * time.Second}, clock.sleeps)
}

func TestGenerateSection_RateLimitExhausted(t *testing.T) {
	opts := testOptions()
	opts.MaxRateLimitRetries = 2
	c, backend, _ := newTestClient(opts, rateLimited(), rateLimited(), rateLimited(), rateLimited())

	_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExhausted)
	assert.True(t, Recoverable(err))

	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.KindRateLimited, apiErr.Kind)
	assert.Len(t, backend.calls, 3, "initial attempt plus two retries")
}

func TestGenerateSection_FatalIsNotRetried(t *testing.T) {
	c, backend, clock := newTestClient(testOptions(),
		reply{err: &api.APIError{Kind: api.KindInvalidRequest, StatusCode: 401, Message: "bad key"}})

	_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	assert.ErrorIs(t, err, ErrFatalGeneration)
	assert.False(t, Recoverable(err))
	assert.Len(t, backend.calls, 1)
	assert.Empty(t, clock.sleeps)
}

func TestGenerateSection_TransientRespectsMinDelay(t *testing.T) {
	c, backend, clock := newTestClient(testOptions(),
		transientFailure(), transientFailure(), transientFailure(), transientFailure())

	_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	assert.ErrorIs(t, err, ErrTransientExhausted)
	require.Len(t, backend.calls, 4)

	var offsets []time.Duration
	for _, at := range backend.calls {
		offsets = append(offsets, clock.elapsed(at))
	}
	// backoff 1s, 2s, 4s; the first two are stretched to the 2.5s spacing
	assert.Equal(t, []time.Duration{0, 2500 * time.Millisecond, 5 * time.Second, 9 * time.Second}, offsets)
}

func TestGenerateSection_RetryAfterAndCap(t *testing.T) {
	opts := testOptions()
	opts.MaxBackoff = 5 * time.Second
	retryAfter := &api.APIError{Kind: api.KindRateLimited, StatusCode: 429, RetryAfter: 30 * time.Second}
	c, _, clock := newTestClient(opts, reply{err: retryAfter}, rateLimited())

	_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second, 5 * time.Second}, clock.sleeps)
}

func TestGenerateSection_SpacingBetweenCalls(t *testing.T) {
	c, backend, clock := newTestClient(testOptions())

	for i := 0; i < 3; i++ {
		_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
		require.NoError(t, err)
	}
	require.Len(t, backend.calls, 3)
	for i := 1; i < len(backend.calls); i++ {
		assert.Equal(t, 2500*time.Millisecond, backend.calls[i].Sub(backend.calls[i-1]))
	}
	assert.Equal(t, 5*time.Second, clock.elapsed(clock.Now()))
}

func TestGenerateSection_UnusableOutputIsRetried(t *testing.T) {
	c, backend, _ := newTestClient(testOptions(),
		reply{text: "I'm sorry, but I cannot write this section for you today at all."},
		reply{text: "Too short."},
		reply{text: "<think>plan the section</think>\nHere is the section:\n" + goodSection})

	text, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
	require.NoError(t, err)
	assert.Equal(t, goodSection, text)
	assert.Len(t, backend.calls, 3)
}

func TestGenerateSection_CancelledDuringCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, backend, _ := newTestClient(testOptions(), rateLimited())
	backend.onCall = func(int) { cancel() }

	_, err := c.GenerateSection(ctx, testSection, SectionContext{TotalSections: 10})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, backend.calls, 1)
}

type inFlightGauge struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (p *inFlightGauge) Generate(ctx context.Context, _ Prompt) (string, error) {
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		cur := p.maxSeen.Load()
		if n <= cur || p.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	p.calls.Add(1)
	time.Sleep(2 * time.Millisecond)
	return goodSection, nil
}

func TestGenerateSection_Serialized(t *testing.T) {
	gauge := &inFlightGauge{}
	opts := testOptions()
	opts.MinCallDelay = 0
	c := NewClient(gauge, opts, testTemplates(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GenerateSection(context.Background(), testSection, SectionContext{TotalSections: 10})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), gauge.calls.Load())
	assert.Equal(t, int32(1), gauge.maxSeen.Load())
}

func TestGenerateOutline_ParsesFencedJSON(t *testing.T) {
	raw := "Sure!\n```json\n{\"title\": \"Expansion Plan\", \"topics\": [{\"title\": \"Market\", \"subtopics\": [\"Size\"]}]}\n```"
	c, backend, _ := newTestClient(testOptions(), reply{text: "not json at all"}, reply{text: raw})

	outline, err := c.GenerateOutline(context.Background(), "Expand into Iberia", "", 12)
	require.NoError(t, err)
	assert.Equal(t, "Expansion Plan", outline.Title)
	assert.Equal(t, "Expand into Iberia", outline.Brief)
	require.Len(t, outline.Topics, 1)
	assert.Equal(t, []string{"Size"}, outline.Topics[0].SubTopics)

	require.Len(t, backend.prompts, 2)
	assert.True(t, backend.prompts[0].JSONMode)
	assert.True(t, strings.Contains(backend.prompts[0].User, "12 top-level chapters"))
}

func TestGenerateOutline_UsesOutlineBackend(t *testing.T) {
	c, sections, clock := newTestClient(testOptions())
	architect := &scriptedBackend{clock: clock, replies: []reply{{text: `{"title":"T","topics":[{"title":"A"}]}`}}}
	c.SetOutlineBackend(architect)

	_, err := c.GenerateOutline(context.Background(), "brief", "Working Title", 3)
	require.NoError(t, err)
	assert.Len(t, architect.calls, 1)
	assert.Empty(t, sections.calls)
}

func TestClassify_UnknownErrorsAreTransient(t *testing.T) {
	kind, apiErr := classify(errors.New("connection reset"))
	assert.Equal(t, api.KindTransient, kind)
	assert.Nil(t, apiErr)

	kind, _ = classify(&ContentError{Reason: "x"})
	assert.Equal(t, api.KindTransient, kind)
}
