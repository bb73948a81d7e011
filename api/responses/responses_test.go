package responses

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"hello": "world"})

	if got := w.Code; got != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", got)
	}
	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["hello"] != "world" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteCreated(t *testing.T) {
	w := httptest.NewRecorder()
	WriteCreated(w, map[string]int{"n": 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestWriteErrorMapsTypedError(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeValidation, "bad input").
		WithDetails(map[string]string{"field": "quantity"})
	WriteError(context.Background(), testLogger(), w, err)

	if got := w.Code; got != http.StatusBadRequest {
		t.Fatalf("expected status 400 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeValidation) || body.Error.Message != "bad input" {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	if body.Error.Details == nil {
		t.Fatalf("expected details in public payload")
	}
}

func TestWriteErrorStatusPerCode(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeUnauthorized:  http.StatusUnauthorized,
		pkgerrors.CodeForbidden:     http.StatusForbidden,
		pkgerrors.CodeNotFound:      http.StatusNotFound,
		pkgerrors.CodeConflict:      http.StatusConflict,
		pkgerrors.CodeStateConflict: http.StatusUnprocessableEntity,
		pkgerrors.CodeIdempotency:   http.StatusConflict,
		pkgerrors.CodeRateLimit:     http.StatusTooManyRequests,
		pkgerrors.CodeDependency:    http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		t.Run(string(code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), testLogger(), w, pkgerrors.New(code, "x"))
			if w.Code != status {
				t.Fatalf("expected %d got %d", status, w.Code)
			}
		})
	}
}

func TestWriteErrorForbiddenDropsDetails(t *testing.T) {
	w := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeForbidden, "not your order").WithDetails(map[string]string{"owner": "someone"})
	WriteError(context.Background(), testLogger(), w, err)

	if body := decodeError(t, w); body.Error.Details != nil {
		t.Fatalf("forbidden responses must not carry details")
	}
}

func TestWriteErrorDefaultsToInternalForUntrustedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), testLogger(), w, errors.New("boom"))

	if got := w.Code; got != http.StatusInternalServerError {
		t.Fatalf("expected status 500 but got %d", got)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("unexpected code %s", body.Error.Code)
	}
	if body.Error.Message == "boom" {
		t.Fatalf("internal error text must not leak")
	}
	if body.Error.Details != nil {
		t.Fatalf("details should be omitted for internal errors")
	}
}

func TestWriteErrorEchoesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), chimw.RequestIDKey, "req-42")
	rec := httptest.NewRecorder()
	WriteError(ctx, testLogger(), rec, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))

	var env types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.RequestID != "req-42" {
		t.Fatalf("expected request id in body, got %q", env.Error.RequestID)
	}
}
