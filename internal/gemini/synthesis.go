package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/deusflow/hunews/internal/archive"
	"github.com/deusflow/hunews/internal/news"
	"github.com/deusflow/hunews/internal/ratelimit"
	"github.com/deusflow/hunews/internal/retry"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
)

var ErrAttemptTimeout = errors.New("model call timed out")

// SynthesisError is fatal for the run: the model could not be reached after
// the retry, or its answer did not satisfy the response schema. Raw holds
// the model's answer in the latter case.
type SynthesisError struct {
	Reason   string
	Attempts int
	Raw      string
	Err      error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return "synthesis failed: " + e.Reason
	}
	return fmt.Sprintf("synthesis failed: %s: %v", e.Reason, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Synthesis is the validated model output for one run.
type Synthesis struct {
	Stories           []archive.Story
	MethodologyNoteHU string
	MethodologyNoteEN string
	Model             string
	Attempts          int
	Dropped           int
}

type Options struct {
	AttemptTimeout time.Duration
	Retries        int
	RetryDelay     time.Duration
	Budget         *ratelimit.Budget // optional
	Logger         *slog.Logger
}

// Engine turns the collected articles into bilingual stories with a single
// model call, retried once on transport failures.
type Engine struct {
	gen            Generator
	attemptTimeout time.Duration
	retries        int
	retryDelay     time.Duration
	budget         *ratelimit.Budget
	log            *slog.Logger
}

func NewEngine(gen Generator, opts Options) *Engine {
	e := &Engine{
		gen:            gen,
		attemptTimeout: opts.AttemptTimeout,
		retries:        opts.Retries,
		retryDelay:     opts.RetryDelay,
		budget:         opts.Budget,
		log:            opts.Logger,
	}
	if e.attemptTimeout <= 0 {
		e.attemptTimeout = 3 * time.Minute
	}
	if e.retries < 0 {
		e.retries = 0
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e
}

func (e *Engine) Model() string { return e.gen.Model() }

// Synthesize runs the model call and validates its answer. Stories keep the
// order the model returned them in. If ctx ends, its error is returned
// unwrapped from SynthesisError so the caller can tell a run deadline apart.
func (e *Engine) Synthesize(ctx context.Context, articles []news.Article) (*Synthesis, error) {
	if len(articles) == 0 {
		return nil, &SynthesisError{Reason: "no articles to synthesize"}
	}

	prompt := BuildPrompt(articles)
	known := make(map[string]string)
	for _, name := range news.SourceNames(articles) {
		known[strings.ToLower(name)] = name
	}

	var raw string
	attempts := 0
	cfg := retry.RetryConfig{
		MaxAttempts: e.retries + 1,
		Delay:       e.retryDelay,
		Retryable: func(err error) bool {
			return ctx.Err() == nil && IsTransient(err)
		},
	}

	err := retry.WithRetry(ctx, cfg, func(attempt int) error {
		if e.budget != nil {
			if err := e.budget.Use(); err != nil {
				return err
			}
		}
		attempts = attempt

		actx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()

		e.log.Info("sending synthesis request", "model", e.gen.Model(), "attempt", attempt, "articles", len(articles))
		out, err := e.gen.Generate(actx, prompt)
		if err != nil {
			if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, e.attemptTimeout, err)
			}
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("synthesis: %w", ctxErr)
		}
		return nil, &SynthesisError{Reason: "model call failed", Attempts: attempts, Err: err}
	}

	syn, err := parseResponse(raw, known, e.log)
	if err != nil {
		var se *SynthesisError
		if errors.As(err, &se) {
			se.Attempts = attempts
			se.Raw = raw
		}
		return nil, err
	}
	syn.Model = e.gen.Model()
	syn.Attempts = attempts

	e.log.Info("synthesis complete", "stories", len(syn.Stories), "dropped", syn.Dropped, "attempts", attempts)
	return syn, nil
}

// IsTransient reports transport failures worth one more attempt: attempt
// timeouts, network timeouts and server side (5xx) errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPCode() >= 500 {
		return true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code >= 500 {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type rawResponse struct {
	Stories           *[]json.RawMessage `json:"stories"`
	MethodologyNoteHU *string            `json:"methodology_note_hu"`
	MethodologyNoteEN *string            `json:"methodology_note_en"`
}

// rawStory uses pointers so absent fields can be told apart from empty ones.
type rawStory struct {
	TitleHU                 *string   `json:"title_hu"`
	TitleEN                 *string   `json:"title_en"`
	SummaryHU               *string   `json:"summary_hu"`
	SummaryEN               *string   `json:"summary_en"`
	SourcesAnalyzed         []string  `json:"sources_analyzed"`
	PerspectiveComparisonHU *string   `json:"perspective_comparison_hu"`
	PerspectiveComparisonEN *string   `json:"perspective_comparison_en"`
	KeyFacts                *[]string `json:"key_facts"`
}

func parseResponse(text string, known map[string]string, log *slog.Logger) (*Synthesis, error) {
	var resp rawResponse
	if err := json.Unmarshal([]byte(stripFences(text)), &resp); err != nil {
		return nil, &SynthesisError{Reason: "malformed model response", Err: err}
	}
	if resp.Stories == nil {
		return nil, &SynthesisError{Reason: "response has no stories field"}
	}

	noteHU, noteEN := deref(resp.MethodologyNoteHU), deref(resp.MethodologyNoteEN)
	if (noteHU == "") != (noteEN == "") {
		return nil, &SynthesisError{Reason: "methodology note present in one locale only"}
	}

	syn := &Synthesis{MethodologyNoteHU: noteHU, MethodologyNoteEN: noteEN}
	for i, msg := range *resp.Stories {
		story, err := validateStory(msg, known)
		if err != nil {
			syn.Dropped++
			log.Warn("dropping invalid story", "index", i, "error", err)
			continue
		}
		syn.Stories = append(syn.Stories, story)
	}

	if len(syn.Stories) == 0 {
		return nil, &SynthesisError{Reason: fmt.Sprintf("no valid stories (%d dropped)", syn.Dropped)}
	}
	return syn, nil
}

func validateStory(msg json.RawMessage, known map[string]string) (archive.Story, error) {
	var rs rawStory
	if err := json.Unmarshal(msg, &rs); err != nil {
		return archive.Story{}, err
	}

	fields := map[string]*string{
		"title_hu":                  rs.TitleHU,
		"title_en":                  rs.TitleEN,
		"summary_hu":                rs.SummaryHU,
		"summary_en":                rs.SummaryEN,
		"perspective_comparison_hu": rs.PerspectiveComparisonHU,
		"perspective_comparison_en": rs.PerspectiveComparisonEN,
	}
	for name, v := range fields {
		if v == nil {
			return archive.Story{}, fmt.Errorf("missing field %s", name)
		}
	}
	if rs.KeyFacts == nil {
		return archive.Story{}, fmt.Errorf("missing field key_facts")
	}

	s := archive.Story{
		TitleHU:                 strings.TrimSpace(*rs.TitleHU),
		TitleEN:                 strings.TrimSpace(*rs.TitleEN),
		SummaryHU:               strings.TrimSpace(*rs.SummaryHU),
		SummaryEN:               strings.TrimSpace(*rs.SummaryEN),
		PerspectiveComparisonHU: strings.TrimSpace(*rs.PerspectiveComparisonHU),
		PerspectiveComparisonEN: strings.TrimSpace(*rs.PerspectiveComparisonEN),
	}

	seen := map[string]bool{}
	for _, name := range rs.SourcesAnalyzed {
		canonical, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return archive.Story{}, fmt.Errorf("unknown source %q", name)
		}
		if !seen[canonical] {
			seen[canonical] = true
			s.SourcesAnalyzed = append(s.SourcesAnalyzed, canonical)
		}
	}

	s.KeyFacts = []string{}
	for _, fact := range *rs.KeyFacts {
		if fact = strings.TrimSpace(fact); fact != "" {
			s.KeyFacts = append(s.KeyFacts, fact)
		}
	}

	if err := s.Validate(); err != nil {
		return archive.Story{}, err
	}
	return s, nil
}

// stripFences removes a markdown code fence wrapping the whole payload.
// Backticks inside the JSON are left alone.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.ContainsAny(t[:nl], "{[") {
		t = t[nl+1:]
	}
	if end := strings.LastIndex(t, "```"); end >= 0 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
