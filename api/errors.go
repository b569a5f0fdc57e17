package api

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/warp/lesson-ledger/ledger"
)

// writeError writes a message plus the underlying error as details.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors to HTTP status codes.
//
//	NotFound            404
//	SchedulingConflict  400, details carry the colliding date/time
//	InsufficientCredit  400, with required/available
//	InvalidTransition   409
//	Validation          400
//	Unauthorized        401
//	EmailTaken          409
//	other client errors 400 (logged as warnings)
//	anything else       500 (logged, details hidden)
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound     *ledger.NotFoundError
		conflict     *ledger.ConflictError
		insufficient *ledger.InsufficientCreditError
		invalid      *ledger.ValidationError
		validation   validator.ValidationErrors
	)

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error(), nil)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)

	case errors.As(err, &conflict):
		writeError(w, http.StatusBadRequest, "Scheduling conflict", conflict)

	case errors.As(err, &insufficient):
		req, avail := insufficient.Required, insufficient.Available
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:     "Insufficient credit",
			Details:   insufficient.Error(),
			Required:  &req,
			Available: &avail,
		})

	case errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Invalid lesson status transition", err)

	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: invalid.Error(),
			Field:   invalid.Field,
		})
	case errors.As(err, &validation):
		fe := validation[0]
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: fe.Error(),
			Field:   fe.Field(),
		})

	case errors.Is(err, ledger.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized", nil)

	case errors.Is(err, ledger.ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already registered", nil)

	case ledger.IsClientError(err):
		zerolog.Ctx(r.Context()).Warn().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request rejected")
		writeError(w, http.StatusBadRequest, "Bad request", err)

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
