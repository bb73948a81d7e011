package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
)

// publicMessageCodes keep the caller-facing message of the typed error.
var publicMessageCodes = map[pkgerrors.Code]struct{}{
	pkgerrors.CodeValidation:    {},
	pkgerrors.CodeForbidden:     {},
	pkgerrors.CodeUnauthorized:  {},
	pkgerrors.CodeNotFound:      {},
	pkgerrors.CodeConflict:      {},
	pkgerrors.CodeStateConflict: {},
	pkgerrors.CodeIdempotency:   {},
	pkgerrors.CodeRateLimit:     {},
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteCreated(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusCreated, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError is the single mapping from typed errors to HTTP responses.
// Client errors are logged at warn, everything else at error with the pg dump.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if _, ok := publicMessageCodes[typed.Code()]; ok && typed.Message() != "" {
		msg = typed.Message()
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			RequestID: chimw.GetReqID(ctx),
		},
	}
	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logError(ctx, logg, err, meta.HTTPStatus)
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

func logError(ctx context.Context, logg *logger.Logger, err error, status int) {
	dump := pkgerrors.Dump(err)
	fields := map[string]any{
		"error_code":  dump.Code,
		"error_chain": dump.Chain,
		"status":      status,
	}
	if dump.PGCode != "" {
		fields["pg_code"] = dump.PGCode
		fields["pg_detail"] = dump.PGDetail
		fields["pg_message"] = dump.PGMessage
		fields["pg_table"] = dump.PGTable
		fields["pg_constraint"] = dump.PGConstraint
	}
	ctx = logg.WithFields(ctx, fields)
	if status < http.StatusInternalServerError {
		logg.Warn(ctx, "request.rejected: "+dump.TopMessage)
		return
	}
	logg.Error(ctx, "request.error", err)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
