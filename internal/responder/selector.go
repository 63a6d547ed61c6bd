package responder

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"supreme-bot/internal/genai"
	"supreme-bot/internal/storage"
)

type Source string

const (
	SourceTrained    Source = "trained"
	SourceGenerative Source = "generative"
	SourceFallback   Source = "fallback"
)

// Corpus is the trained response store.
type Corpus interface {
	ListTraining(ctx context.Context) ([]storage.Training, error)
	IncrementUsage(ctx context.Context, id int64) error
}

type Generator interface {
	Generate(ctx context.Context, req genai.Request) (string, error)
}

// Recorder receives reply and latency observations.
type Recorder interface {
	Reply(source string)
	Generative(d time.Duration, ok bool)
}

type Request struct {
	TicketID string
	Input    string
	Vars     Vars
	History  []genai.Turn
}

type Reply struct {
	Text   string
	Source Source
	// Training is set when Source is SourceTrained.
	Training *storage.Training
}

type Options struct {
	Timeout  time.Duration
	Apology  string
	Budget   *Budget
	Recorder Recorder
	Now      func() time.Time
}

type Selector struct {
	corpus    Corpus
	generator Generator
	chooser   *Chooser
	budget    *Budget
	timeout   time.Duration
	apology   string
	recorder  Recorder
	now       func() time.Time
	logger    *zap.Logger
}

// NewSelector builds a selector. generator may be nil, in which case every
// non-trained reply degrades to the apology.
func NewSelector(corpus Corpus, generator Generator, chooser *Chooser, opts Options, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Apology == "" {
		opts.Apology = "Sorry, I couldn't come up with an answer right now. A staff member will be with you shortly."
	}
	return &Selector{
		corpus:    corpus,
		generator: generator,
		chooser:   chooser,
		budget:    opts.Budget,
		timeout:   opts.Timeout,
		apology:   opts.Apology,
		recorder:  opts.Recorder,
		now:       opts.Now,
		logger:    logger,
	}
}

// Select picks the reply for free-form input. It never fails: every error
// path ends in the apology.
func (s *Selector) Select(ctx context.Context, req Request) Reply {
	corpus, err := s.corpus.ListTraining(ctx)
	if err != nil {
		s.logger.Warn("failed to load trained responses", zap.Error(err))
	}
	if entry, ok := Match(corpus, req.Input); ok {
		if s.chooser == nil || s.chooser.UseTrained() {
			return s.Render(ctx, entry, req)
		}
		s.logger.Debug("trained match skipped by weighting", zap.Int64("training_id", entry.ID))
	}
	return s.generate(ctx, req)
}

// Render formats a specific trained entry and counts its use.
func (s *Selector) Render(ctx context.Context, entry storage.Training, req Request) Reply {
	if err := s.corpus.IncrementUsage(ctx, entry.ID); err != nil {
		s.logger.Warn("failed to increment training usage", zap.Int64("training_id", entry.ID), zap.Error(err))
	} else {
		entry.UsageCount++
	}
	s.record(SourceTrained)
	return Reply{
		Text:     Format(entry.Response, req.Vars),
		Source:   SourceTrained,
		Training: &entry,
	}
}

func (s *Selector) generate(ctx context.Context, req Request) Reply {
	if s.generator == nil {
		return s.fallback()
	}
	if !s.budget.Allow(req.TicketID, s.now()) {
		s.logger.Info("generative budget exhausted", zap.String("ticket_id", req.TicketID))
		return s.fallback()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()
	text, err := s.generator.Generate(callCtx, genai.Request{
		Query:   req.Input,
		History: req.History,
		Context: tradeContext(req.Vars.Data),
	})
	elapsed := s.now().Sub(started)
	if s.recorder != nil {
		s.recorder.Generative(elapsed, err == nil && text != "")
	}
	if err != nil {
		s.logger.Warn("generative responder failed", zap.String("ticket_id", req.TicketID), zap.Error(err))
		return s.fallback()
	}
	if text == "" {
		return s.fallback()
	}
	s.record(SourceGenerative)
	return Reply{Text: text, Source: SourceGenerative}
}

func (s *Selector) fallback() Reply {
	s.record(SourceFallback)
	return Reply{Text: s.apology, Source: SourceFallback}
}

func (s *Selector) record(source Source) {
	if s.recorder != nil {
		s.recorder.Reply(string(source))
	}
}

func tradeContext(data map[string]string) string {
	if len(data) == 0 {
		return ""
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return "[Current Trade Data]: " + string(raw)
}
