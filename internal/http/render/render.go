// Package render holds the JSON and error plumbing shared by the API
// handlers.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/debtsync/internal/allocation"
	"github.com/MrJamesThe3rd/debtsync/internal/intake"
	"github.com/MrJamesThe3rd/debtsync/internal/job"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
	"github.com/MrJamesThe3rd/debtsync/internal/rollback"
)

var ErrBadRequest = errors.New("bad request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode reads a JSON body into v and validates its struct tags. An empty
// body decodes to the zero value, so optional bodies need no special case.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", ErrBadRequest, describe(verrs))
		}

		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	return nil
}

// ID parses the named URL parameter as a uuid.
func ID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", ErrBadRequest, name)
	}

	return id, nil
}

func describe(verrs validator.ValidationErrors) string {
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" "+fe.Tag())
	}

	slices.Sort(fields)

	return strings.Join(fields, ", ")
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status StatusOf picks. Unexpected errors are
// logged and hidden behind a generic message.
func Error(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", status)

		return
	}

	http.Error(w, err.Error(), status)
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, reconcile.ErrInvalidMode),
		errors.Is(err, reconcile.ErrInvalidThreshold),
		errors.Is(err, rollback.ErrEmptySelector),
		errors.Is(err, intake.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, job.ErrNotFound),
		errors.Is(err, rollback.ErrNoInvoices):
		return http.StatusNotFound
	case errors.Is(err, allocation.ErrAlreadyAllocated),
		errors.Is(err, reconcile.ErrRunInProgress),
		errors.Is(err, reconcile.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, allocation.ErrInvalidAmount),
		errors.Is(err, allocation.ErrRepresentativeMismatch),
		errors.Is(err, allocation.ErrNoEligibleInvoice),
		errors.Is(err, ledger.ErrInvalid):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
