package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kv-catalog/internal/catalog"
)

// writeError emits the {"code","message"} error body.
func writeError(w http.ResponseWriter, code int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// respondError maps catalog errors onto HTTP statuses: NotFound is a missing
// resource, validation is bad input, and everything else (store unavailable,
// partial failure) tells the client to try again.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *catalog.ValidationError
	var pErr *catalog.PartialError

	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.As(err, &pErr):
		zctx.From(r.Context()).Error("partial failure",
			zap.String("op", pErr.Op),
			zap.String("step", pErr.Step),
			zap.Error(pErr.Err),
		)
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again")
	default:
		zctx.From(r.Context()).Error("catalog operation failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, try again")
	}
}
