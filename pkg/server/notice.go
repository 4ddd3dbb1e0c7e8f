package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/yurifrl/exoprep/pkg/parser"
	"github.com/yurifrl/exoprep/pkg/payload"
	"github.com/yurifrl/exoprep/pkg/predictor"
	"github.com/yurifrl/exoprep/pkg/reconcile"
	"github.com/yurifrl/exoprep/pkg/records"
	"github.com/yurifrl/exoprep/pkg/session"
	"github.com/yurifrl/exoprep/pkg/store"
)

// notice maps pipeline errors to a status code and the message shown to the
// user. Every case leaves the session ready for another attempt.
func notice(err error) (int, string) {
	switch {
	case errors.Is(err, parser.ErrEmptyInput):
		return http.StatusBadRequest, "The file has no data lines."
	case errors.Is(err, parser.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType, "This file type is not supported."
	case errors.Is(err, records.ErrIncompleteForm):
		return http.StatusBadRequest, "Please fill in all fields."
	case errors.Is(err, payload.ErrIncompleteMapping):
		return http.StatusBadRequest, "Please map all required columns."
	case errors.Is(err, records.ErrNoData):
		return http.StatusBadRequest, "No data found in the uploaded file."
	case errors.Is(err, reconcile.ErrUnknownHeader):
		return http.StatusBadRequest, "The selected column is not in the uploaded file."
	case errors.Is(err, session.ErrSubmissionInFlight):
		return http.StatusConflict, "An analysis is already running."
	case errors.Is(err, predictor.ErrSubmissionFailed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, "An error occurred while analyzing the data."
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "No analysis results available."
	}
	return http.StatusInternalServerError, "internal server error"
}
