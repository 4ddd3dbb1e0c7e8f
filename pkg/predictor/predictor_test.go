package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
)

func TestPredict(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &gotBody); err != nil {
			t.Errorf("body is not json: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"object_id":"A1","classification":"CONFIRMED"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", 5*time.Second, log.Default())
	p := &models.Payload{
		Records: []models.RawRecord{{"object_id": "A1"}},
		Mapping: models.FieldMapping{fields.ObjectID: "object_id"},
	}
	res, err := c.Predict(context.Background(), p)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if string(res) != `[{"object_id":"A1","classification":"CONFIRMED"}]` {
		t.Errorf("result = %s", res)
	}
	if _, ok := gotBody["data"]; !ok {
		t.Errorf("request body missing data: %v", gotBody)
	}
	if _, ok := gotBody["mapping"]; !ok {
		t.Errorf("request body missing mapping: %v", gotBody)
	}
}

func TestPredictFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		}},
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, time.Second, log.Default())
			_, err := c.Predict(context.Background(), &models.Payload{})
			if !errors.Is(err, ErrSubmissionFailed) {
				t.Errorf("err = %v, want ErrSubmissionFailed", err)
			}
		})
	}
}

func TestPredictTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(url, time.Second, log.Default())
	if _, err := c.Predict(context.Background(), &models.Payload{}); !errors.Is(err, ErrSubmissionFailed) {
		t.Errorf("err = %v, want ErrSubmissionFailed", err)
	}
}

func TestPredictContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, time.Minute, log.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Predict(ctx, &models.Payload{})
	if !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("err = %v, want ErrSubmissionFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded in chain", err)
	}
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/model_metrics" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"accuracy":0.9,"classification_report":{"weighted avg":{"precision":0.8,"recall":0.7}},"class_names":["A","B"],"confusion_matrix":[[1,0],[0,1]]}`))
	}))
	defer srv.Close()

	m, err := New(srv.URL, time.Second, log.Default()).Metrics(context.Background())
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.Accuracy != 0.9 || m.WeightedAvg().Recall != 0.7 || len(m.ClassNames) != 2 {
		t.Errorf("unexpected metrics %+v", m)
	}
}
