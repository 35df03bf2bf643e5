package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lamim/folioforge/internal/api"
	"github.com/lamim/folioforge/internal/config"
	"github.com/lamim/folioforge/internal/metrics"
	"github.com/lamim/folioforge/internal/util"
	"github.com/lamim/folioforge/pkg/models"
)

// RateLimitBackoffMultiplier is the multiplier for rate limit backoff (3^n)
const RateLimitBackoffMultiplier = 3

// Options controls spacing and retry behaviour
type Options struct {
	MinCallDelay        time.Duration
	MaxRateLimitRetries int
	MaxTransientRetries int
	BaseRetryDelay      time.Duration
	MaxBackoff          time.Duration
	MinSectionWords     int
	// Jitter spreads backoff by up to ±10%
	Jitter bool
}

// OptionsFromConfig converts generation settings into client options
func OptionsFromConfig(g config.GenerationConfig) Options {
	return Options{
		MinCallDelay:        time.Duration(g.MinCallDelayMs) * time.Millisecond,
		MaxRateLimitRetries: g.MaxRateLimitRetries,
		MaxTransientRetries: g.MaxTransientRetries,
		BaseRetryDelay:      time.Duration(g.BaseRetryDelayMs) * time.Millisecond,
		MaxBackoff:          time.Duration(g.MaxBackoffSeconds) * time.Second,
		MinSectionWords:     g.MinSectionWords,
		Jitter:              true,
	}
}

// PreviousSection is the tail of an already generated section passed as context
type PreviousSection struct {
	Title   string
	Excerpt string
}

// SectionContext is what a section prompt needs beyond the section itself
type SectionContext struct {
	DocumentTitle string
	TotalSections int
	Previous      []PreviousSection
}

// Client is the rate-limited generation client. All calls, retries included,
// are serialized: at most one attempt is in flight per Client.
type Client struct {
	mu           sync.Mutex
	backend      Backend
	outlineModel Backend
	clock        clockwork.Clock
	gate         *Gate
	opts         Options
	templates    config.PromptTemplates
	metrics      *metrics.Collector
	logger       *slog.Logger
}

// NewClient creates a client over backend. collector may be nil.
func NewClient(
	backend Backend,
	opts Options,
	templates config.PromptTemplates,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Client {
	clock := clockwork.NewRealClock()
	return &Client{
		backend:   backend,
		clock:     clock,
		gate:      NewGate(clock, opts.MinCallDelay),
		opts:      opts,
		templates: templates,
		metrics:   collector,
		logger:    logger.With("component", "generation"),
	}
}

// SetClock replaces the time source, for tests
func (c *Client) SetClock(clock clockwork.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
	c.gate = NewGate(clock, c.opts.MinCallDelay)
}

// SetOutlineBackend routes outline drafting to a different model.
// Spacing and serialization stay shared with section calls.
func (c *Client) SetOutlineBackend(b Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outlineModel = b
}

// GenerateSection produces the body text of one planned section
func (c *Client) GenerateSection(ctx context.Context, section models.Section, sc SectionContext) (string, error) {
	data := map[string]interface{}{
		"DocumentTitle":    sc.DocumentTitle,
		"SectionTitle":     section.Title,
		"ParentTopic":      section.ParentTopic,
		"Focus":            section.Focus,
		"TargetWords":      section.TargetLengthHint,
		"SectionNumber":    section.Index + 1,
		"TotalSections":    sc.TotalSections,
		"PreviousSections": sc.Previous,
	}
	user, err := util.RenderTemplate(c.templates.SectionGeneration, data)
	if err != nil {
		return "", fmt.Errorf("%w: section prompt: %w", ErrFatalGeneration, err)
	}

	prompt := Prompt{System: c.templates.SectionSystemPrompt, User: user}
	return c.call(ctx, c.backend, prompt, func(raw string) (string, error) {
		text := CleanSection(raw)
		if err := checkSection(text, c.opts.MinSectionWords); err != nil {
			return "", err
		}
		return text, nil
	}, "section", section.Index)
}

// GenerateOutline asks the model to draft an outline from a free-text brief
func (c *Client) GenerateOutline(ctx context.Context, brief, title string, numTopics int) (*models.Outline, error) {
	data := map[string]interface{}{
		"Brief":     brief,
		"Title":     title,
		"NumTopics": numTopics,
	}
	user, err := util.RenderTemplate(c.templates.OutlineGeneration, data)
	if err != nil {
		return nil, fmt.Errorf("%w: outline prompt: %w", ErrFatalGeneration, err)
	}

	c.mu.Lock()
	backend := c.outlineModel
	c.mu.Unlock()
	if backend == nil {
		backend = c.backend
	}

	var outline models.Outline
	prompt := Prompt{System: c.templates.OutlineSystemPrompt, User: user, JSONMode: true}
	_, err = c.call(ctx, backend, prompt, func(raw string) (string, error) {
		payload := util.SanitizeJSON(util.ExtractJSON(util.StripThinkTags(raw)))
		var parsed models.Outline
		if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
			return "", &ContentError{Reason: fmt.Sprintf("outline is not valid JSON: %v", err)}
		}
		if len(parsed.Topics) == 0 {
			return "", &ContentError{Reason: "outline has no topics"}
		}
		outline = parsed
		return payload, nil
	}, "outline", -1)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(outline.Title) == "" {
		outline.Title = title
	}
	outline.Brief = brief
	return &outline, nil
}

// call runs the retry loop for one logical request. accept post-processes a
// raw response and may reject it with a *ContentError.
func (c *Client) call(
	ctx context.Context,
	backend Backend,
	prompt Prompt,
	accept func(string) (string, error),
	what string,
	index int,
) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rateLimited, transient := 0, 0
	for {
		waited, err := c.gate.Wait(ctx)
		if err != nil {
			return "", err
		}
		if waited > 0 {
			c.metrics.RecordLimiterWait("gate", waited)
		}

		raw, err := backend.Generate(ctx, prompt)
		c.gate.Done()
		if err == nil {
			var text string
			if text, err = accept(raw); err == nil {
				return text, nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		kind, apiErr := classify(err)
		var delay time.Duration
		switch kind {
		case api.KindInvalidRequest:
			return "", fmt.Errorf("%w: %w", ErrFatalGeneration, err)
		case api.KindRateLimited:
			if rateLimited >= c.opts.MaxRateLimitRetries {
				return "", exhausted(ErrRateLimitExhausted, rateLimited, err)
			}
			rateLimited++
			delay = c.rateLimitBackoff(rateLimited, apiErr)
		default:
			if transient >= c.opts.MaxTransientRetries {
				return "", exhausted(ErrTransientExhausted, transient, err)
			}
			transient++
			delay = c.transientBackoff(transient)
		}

		c.metrics.IncrementRetry(string(kind))
		c.logger.Warn("Retrying generation",
			"request", what,
			"section_index", index,
			"kind", kind,
			"rate_limit_retries", rateLimited,
			"transient_retries", transient,
			"backoff", delay,
			"error", err)

		if err := sleep(ctx, c.clock, delay); err != nil {
			return "", err
		}
	}
}

// rateLimitBackoff is 3^n × base capped at MaxBackoff; a longer server Retry-After wins
func (c *Client) rateLimitBackoff(n int, apiErr *api.APIError) time.Duration {
	backoff := time.Duration(math.Pow(RateLimitBackoffMultiplier, float64(n))) * c.opts.BaseRetryDelay
	backoff = c.capped(c.jitter(backoff))
	if apiErr != nil && apiErr.RetryAfter > backoff {
		return apiErr.RetryAfter
	}
	return backoff
}

// transientBackoff is 2^(n-1) × base capped at MaxBackoff
func (c *Client) transientBackoff(n int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(n-1))) * c.opts.BaseRetryDelay
	return c.capped(c.jitter(backoff))
}

func (c *Client) jitter(d time.Duration) time.Duration {
	if !c.opts.Jitter {
		return d
	}
	return d + time.Duration(float64(d)*0.1*(2*float64(c.clock.Now().UnixNano()%100)/100-1))
}

func (c *Client) capped(d time.Duration) time.Duration {
	if c.opts.MaxBackoff > 0 && d > c.opts.MaxBackoff {
		return c.opts.MaxBackoff
	}
	return d
}
