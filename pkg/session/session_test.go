package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/parser"
	"github.com/yurifrl/exoprep/pkg/payload"
	"github.com/yurifrl/exoprep/pkg/predictor"
	"github.com/yurifrl/exoprep/pkg/records"
	"github.com/yurifrl/exoprep/pkg/store"
)

type fakePredictor struct {
	calls   atomic.Int32
	result  json.RawMessage
	err     error
	block   chan struct{}
	started chan struct{}
	last    *models.Payload
}

func (f *fakePredictor) Predict(ctx context.Context, p *models.Payload) (json.RawMessage, error) {
	f.calls.Add(1)
	f.last = p
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

const fullHeader = "object_id,orbital_period,transit_duration,transit_depth_ppm,planet_radius,stellar_temp,stellar_logg,stellar_radius\n"

func newSession(t *testing.T, p Predictor) (*Session, store.Store) {
	t.Helper()
	st := store.NewMemory()
	return New("test", p, st, time.Second, log.Default()), st
}

func load(t *testing.T, s *Session, text string) {
	t.Helper()
	table, err := parser.Tokenize(text)
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	s.Load(table)
}

func TestSubmitBulkStoresResult(t *testing.T) {
	fp := &fakePredictor{result: json.RawMessage(`[{"classification":"CONFIRMED"}]`)}
	s, st := newSession(t, fp)
	load(t, s, fullHeader+"A1,1,2,3,4,5,6,7\nA2,1,2,3,4,5,6,7\n")

	out, err := s.Submit(context.Background(), nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if out.Redirect != ResultsPath || out.Records != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if len(fp.last.Records) != 2 || fp.last.Mapping[fields.StellarRadius] != "stellar_radius" {
		t.Errorf("unexpected payload %+v", fp.last)
	}
	got, err := st.Get(context.Background(), store.SessionKey("test"))
	if err != nil || string(got) != `[{"classification":"CONFIRMED"}]` {
		t.Errorf("stored result = %s, %v", got, err)
	}
	if s.Submitting() {
		t.Errorf("submission guard still held")
	}
}

func TestSubmitIncompleteMappingMakesNoCall(t *testing.T) {
	fp := &fakePredictor{result: json.RawMessage(`[]`)}
	s, _ := newSession(t, fp)
	load(t, s, "object_id,period\nA1,10\n")

	_, err := s.Submit(context.Background(), nil)
	if !errors.Is(err, payload.ErrIncompleteMapping) {
		t.Fatalf("err = %v, want ErrIncompleteMapping", err)
	}
	if fp.calls.Load() != 0 {
		t.Errorf("predictor called %d times", fp.calls.Load())
	}
	if s.Submitting() {
		t.Errorf("submission guard still held")
	}
}

func TestSubmitBulkWithoutFile(t *testing.T) {
	fp := &fakePredictor{}
	s, _ := newSession(t, fp)
	if _, err := s.Submit(context.Background(), nil); !errors.Is(err, records.ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
	if err := s.Override(fields.ObjectID, "x"); !errors.Is(err, records.ErrNoData) {
		t.Errorf("Override err = %v, want ErrNoData", err)
	}
}

func TestSubmitManual(t *testing.T) {
	fp := &fakePredictor{result: json.RawMessage(`[{}]`)}
	s, _ := newSession(t, fp)
	s.SetMode(models.Manual)

	form := map[string]string{}
	for id := range fields.FormContract {
		form[id] = "1"
	}
	form["planet_radius"] = ""
	if _, err := s.Submit(context.Background(), form); !errors.Is(err, records.ErrIncompleteForm) {
		t.Fatalf("err = %v, want ErrIncompleteForm", err)
	}
	if fp.calls.Load() != 0 {
		t.Fatalf("predictor called for incomplete form")
	}

	form["planet_radius"] = "2.1"
	if _, err := s.Submit(context.Background(), form); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(fp.last.Records) != 1 {
		t.Errorf("manual payload should have one record, got %d", len(fp.last.Records))
	}
	for _, f := range fields.Required {
		if fp.last.Mapping[f] != string(f) {
			t.Errorf("manual mapping[%s] = %q, want identity", f, fp.last.Mapping[f])
		}
	}
}

func TestSubmitFailureLeavesNoResult(t *testing.T) {
	fp := &fakePredictor{err: predictor.ErrSubmissionFailed}
	s, st := newSession(t, fp)
	load(t, s, fullHeader+"A1,1,2,3,4,5,6,7\n")

	if _, err := s.Submit(context.Background(), nil); !errors.Is(err, predictor.ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if s.Submitting() {
		t.Errorf("submission guard should be released after failure")
	}
	if _, err := st.Get(context.Background(), store.SessionKey("test")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("result store written after failure: %v", err)
	}

	fp.err = nil
	fp.result = json.RawMessage(`[]`)
	if _, err := s.Submit(context.Background(), nil); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

func TestSubmitRejectsConcurrent(t *testing.T) {
	fp := &fakePredictor{
		result:  json.RawMessage(`[]`),
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	s, _ := newSession(t, fp)
	load(t, s, fullHeader+"A1,1,2,3,4,5,6,7\n")

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), nil)
		done <- err
	}()
	<-fp.started

	if !s.Submitting() {
		t.Errorf("expected submission in flight")
	}
	if _, err := s.Submit(context.Background(), nil); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("err = %v, want ErrSubmissionInFlight", err)
	}

	close(fp.block)
	if err := <-done; err != nil {
		t.Errorf("first submission failed: %v", err)
	}
	if fp.calls.Load() != 1 {
		t.Errorf("predictor called %d times, want 1", fp.calls.Load())
	}
}

func TestSubmitTimeout(t *testing.T) {
	fp := &fakePredictor{block: make(chan struct{})}
	defer close(fp.block)
	st := store.NewMemory()
	s := New("slow", fp, st, 20*time.Millisecond, log.Default())
	load(t, s, fullHeader+"A1,1,2,3,4,5,6,7\n")

	_, err := s.Submit(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s.Submitting() {
		t.Errorf("guard held after timeout")
	}
}

func TestReloadReplacesState(t *testing.T) {
	s, _ := newSession(t, &fakePredictor{})
	load(t, s, "a,b\n1,2\n3,4\n")
	load(t, s, "object_id\nX\n")

	if got := len(s.Table().Rows); got != 1 {
		t.Errorf("rows after reload = %d, want 1", got)
	}
	if s.Report().Mapping()[fields.ObjectID] != "object_id" {
		t.Errorf("report not rebuilt on reload")
	}
}

func TestManagerGet(t *testing.T) {
	m := NewManager(&fakePredictor{}, store.NewMemory(), time.Second, 0, log.Default())
	a := m.Get("")
	if a.ID == "" {
		t.Fatalf("new session has no id")
	}
	if b := m.Get(a.ID); b != a {
		t.Errorf("Get(existing) returned a different session")
	}
	if c := m.Get("unknown"); c == a || c.ID == "unknown" {
		t.Errorf("unknown id should create a fresh session")
	}
}

func TestManagerExpiresIdleSessions(t *testing.T) {
	m := NewManager(&fakePredictor{}, store.NewMemory(), time.Second, time.Minute, log.Default())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Get("")
	active := m.Get("")

	now = now.Add(45 * time.Second)
	if _, ok := m.Lookup(active.ID); !ok {
		t.Fatalf("active session dropped early")
	}

	now = now.Add(30 * time.Second)
	if _, ok := m.Lookup(idle.ID); ok {
		t.Errorf("idle session still returned after ttl")
	}
	if got := m.Get(idle.ID); got == idle || got.ID == idle.ID {
		t.Errorf("expired id should get a fresh session")
	}
	if s, ok := m.Lookup(active.ID); !ok || s != active {
		t.Errorf("recently used session was dropped")
	}

	now = now.Add(2 * time.Minute)
	m.Sweep()
	if n := m.Len(); n != 0 {
		t.Errorf("sessions after sweep = %d, want 0", n)
	}
}

func TestManagerKeepsSubmittingSession(t *testing.T) {
	m := NewManager(&fakePredictor{}, store.NewMemory(), time.Second, time.Minute, log.Default())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	s := m.Get("")
	s.submitting.Store(true)
	now = now.Add(time.Hour)
	m.Sweep()
	if got, ok := m.Lookup(s.ID); !ok || got != s {
		t.Errorf("session with a submission in flight was evicted")
	}
}

func TestManagerLookupDoesNotCreate(t *testing.T) {
	m := NewManager(&fakePredictor{}, store.NewMemory(), time.Second, time.Minute, log.Default())
	if _, ok := m.Lookup(""); ok {
		t.Errorf("Lookup(\"\") found a session")
	}
	if _, ok := m.Lookup("unknown"); ok {
		t.Errorf("Lookup(unknown) found a session")
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Lookup created %d sessions", n)
	}
}
