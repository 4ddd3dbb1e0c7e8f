package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/parser"
	"github.com/yurifrl/exoprep/pkg/payload"
	"github.com/yurifrl/exoprep/pkg/reconcile"
	"github.com/yurifrl/exoprep/pkg/records"
	"github.com/yurifrl/exoprep/pkg/store"
)

// ErrSubmissionInFlight is returned when Submit is called while a previous
// submission of the same session has not resolved.
var ErrSubmissionInFlight = errors.New("a submission is already in progress")

// ResultsPath is where clients go once a result has been stored.
const ResultsPath = "/results"

// Predictor is the prediction boundary.
type Predictor interface {
	Predict(ctx context.Context, p *models.Payload) (json.RawMessage, error)
}

// Outcome describes a successful submission.
type Outcome struct {
	Result   json.RawMessage
	Redirect string
	Records  int
}

// Session is the state of one user's ingestion page: the input mode, the
// last parsed file and its header mapping.
type Session struct {
	ID string

	mu     sync.Mutex
	mode   models.Mode
	table  *parser.Table
	report *reconcile.Report

	submitting atomic.Bool
	// lastSeen is the unix nano time of the last Manager lookup.
	lastSeen atomic.Int64

	predictor Predictor
	results   store.Store
	timeout   time.Duration
	logger    *log.Logger
}

func New(id string, predictor Predictor, results store.Store, timeout time.Duration, logger *log.Logger) *Session {
	return &Session{
		ID:        id,
		mode:      models.Bulk,
		predictor: predictor,
		results:   results,
		timeout:   timeout,
		logger:    logger.With("session", id),
	}
}

// Load replaces any previously loaded file with t and proposes a mapping.
func (s *Session) Load(t *parser.Table) *reconcile.Report {
	report := reconcile.Build(t.Headers, fields.Required)

	s.mu.Lock()
	s.table = t
	s.report = report
	s.mu.Unlock()

	s.logger.Info("file loaded", "headers", len(t.Headers), "rows", len(t.Rows), "matched", report.MatchedCount(), "unmapped", report.UnmappedCount())
	return report
}

func (s *Session) SetMode(m models.Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *Session) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Report returns the current mapping report, nil before a file is loaded.
func (s *Session) Report() *reconcile.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Table returns the last loaded file, nil before a file is loaded.
func (s *Session) Table() *parser.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// Override changes the header selected for field.
func (s *Session) Override(field fields.Field, header string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.report == nil {
		return records.ErrNoData
	}
	return s.report.Override(field, header)
}

// Submitting reports whether a submission is outstanding.
func (s *Session) Submitting() bool {
	return s.submitting.Load()
}

// Prepare builds and validates the payload for the current mode without
// sending it. form is only read in manual mode.
func (s *Session) Prepare(form map[string]string) (*models.Payload, error) {
	s.mu.Lock()
	mode, table, report := s.mode, s.table, s.report
	s.mu.Unlock()

	if mode == models.Manual {
		recs, err := records.Manual(form)
		if err != nil {
			return nil, err
		}
		return payload.Assemble(models.Manual, recs, nil)
	}

	recs, err := records.Bulk(table)
	if err != nil {
		return nil, err
	}
	return payload.Assemble(models.Bulk, recs, report.Mapping())
}

// Submit prepares the payload, sends it and stores the result. Only one
// submission per session runs at a time; the guard is released on every
// return path so a failed attempt can be retried.
func (s *Session) Submit(ctx context.Context, form map[string]string) (*Outcome, error) {
	if !s.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmissionInFlight
	}
	defer s.submitting.Store(false)

	p, err := s.Prepare(form)
	if err != nil {
		s.logger.Warn("submission rejected", "mode", s.Mode(), "err", err)
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("submitting", "mode", s.Mode(), "records", len(p.Records))
	result, err := s.predictor.Predict(ctx, p)
	if err != nil {
		s.logger.Warn("submission failed", "err", err)
		return nil, err
	}

	if err := s.results.Put(ctx, store.SessionKey(s.ID), result); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}
	return &Outcome{Result: result, Redirect: ResultsPath, Records: len(p.Records)}, nil
}

// Result returns the last stored result for this session.
func (s *Session) Result(ctx context.Context) (json.RawMessage, error) {
	b, err := s.results.Get(ctx, store.SessionKey(s.ID))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
