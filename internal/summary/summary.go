// Package summary produces meeting summaries and stores transcripts in the
// meeting index for later retrieval.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/onedesk/internal/chunk"
	oderrors "github.com/Aman-CERP/onedesk/internal/errors"
	"github.com/Aman-CERP/onedesk/internal/llm"
)

// DefaultTitle is used when a meeting has no title.
const DefaultTitle = "Untitled Meeting"

// QuickSentences is how many sentences the extractive summary keeps.
const QuickSentences = 5

// Mode selects how a summary is produced.
type Mode string

const (
	// ModeLLM asks the LLM for a structured summary.
	ModeLLM Mode = "llm"
	// ModeQuick takes the leading sentences of the transcript.
	ModeQuick Mode = "quick"
)

// ParseMode converts a request parameter to a Mode. Empty means ModeLLM.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLLM:
		return ModeLLM, nil
	case ModeQuick:
		return ModeQuick, nil
	default:
		return "", oderrors.ValidationError(fmt.Sprintf("unknown summary mode %q (use llm or quick)", s), nil)
	}
}

// Summary is the result of summarizing a meeting. ChunksStored and
// TotalMeetings are set only when the transcript was stored.
type Summary struct {
	Summary       string `json:"summary"`
	MeetingTitle  string `json:"meeting_title"`
	TextLength    int    `json:"text_length"`
	Mode          Mode   `json:"mode"`
	Cached        bool   `json:"cached"`
	LatencyMS     int64  `json:"latency_ms"`
	ChunksStored  *int   `json:"chunks_stored,omitempty"`
	TotalMeetings *int   `json:"total_meetings,omitempty"`
}

// Store persists meeting transcripts. *ingest.Ingester satisfies it.
type Store interface {
	IngestText(ctx context.Context, source, text string, typ chunk.ContentType) (int, error)
	Count() int
}

// Service summarizes meetings.
type Service struct {
	llm   llm.Client
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. A nil or unconfigured client makes every summary
// extractive. store may be nil if SummarizeAndStore is never called.
func New(client llm.Client, store Store, opts ...Option) *Service {
	s := &Service{llm: client, store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize returns a summary of text. An LLM failure does not fail the
// call; the error text is returned as the summary instead.
func (s *Service) Summarize(ctx context.Context, text, title string, mode Mode) (*Summary, error) {
	start := s.now()
	if strings.TrimSpace(text) == "" {
		return nil, oderrors.ValidationError("meeting content is required", nil).
			WithDetail("field", "meeting_content")
	}
	title = normalizeTitle(title)
	mode = s.effectiveMode(mode)

	var body string
	switch mode {
	case ModeQuick:
		body = SimpleSummary(text, QuickSentences)
	default:
		body = s.generate(ctx, text, title)
	}

	return &Summary{
		Summary:      body,
		MeetingTitle: title,
		TextLength:   utf8.RuneCountInString(text),
		Mode:         mode,
		LatencyMS:    s.now().Sub(start).Milliseconds(),
	}, nil
}

// SummarizeAndStore summarizes text, then chunks, embeds and stores the
// transcript in the meeting index under title.
func (s *Service) SummarizeAndStore(ctx context.Context, text, title string, mode Mode) (*Summary, error) {
	if s.store == nil {
		return nil, oderrors.InternalError("meeting store is not configured", nil)
	}
	start := s.now()
	sum, err := s.Summarize(ctx, text, title, mode)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.IngestText(ctx, sum.MeetingTitle, text, chunk.ContentTypeMeeting)
	if err != nil {
		return nil, err
	}
	total := s.store.Count()
	sum.ChunksStored = &stored
	sum.TotalMeetings = &total
	sum.LatencyMS = s.now().Sub(start).Milliseconds()

	slog.Info("meeting_stored",
		slog.String("title", sum.MeetingTitle),
		slog.Int("chunks", stored),
		slog.Int("total", total))
	return sum, nil
}

func (s *Service) effectiveMode(mode Mode) Mode {
	if mode == ModeQuick {
		return ModeQuick
	}
	if s.llm == nil || llm.IsUnavailable(s.llm) {
		return ModeQuick
	}
	return ModeLLM
}

func (s *Service) generate(ctx context.Context, text, title string) string {
	reply, err := s.llm.Generate(ctx, buildMessages(text, title), llm.Options{})
	if err != nil {
		slog.Warn("summary_generation_failed",
			slog.String("title", title),
			slog.String("model", s.llm.Model()),
			slog.String("error", err.Error()))
		return "Error generating summary: " + err.Error()
	}
	return strings.TrimSpace(reply)
}

func normalizeTitle(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return DefaultTitle
}

// SimpleSummary returns the first maxSentences non-blank sentences of text,
// splitting on periods. Blank text yields "".
func SimpleSummary(text string, maxSentences int) string {
	if strings.TrimSpace(text) == "" || maxSentences <= 0 {
		return ""
	}
	var sentences []string
	for _, s := range strings.Split(text, ".") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences = append(sentences, s+".")
		if len(sentences) == maxSentences {
			break
		}
	}
	return strings.Join(sentences, " ")
}
