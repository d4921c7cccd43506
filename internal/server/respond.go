package server

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/valyala/fasthttp"

	"github.com/roach88/flyter/internal/host"
	"github.com/roach88/flyter/internal/ledger"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, data any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(data); err != nil {
		slog.Error("write response", "error", err, "path", string(ctx.Path()))
	}
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, errorBody{Error: message, Code: code})
}

// writeCallError maps a Submit error to an HTTP status.
func writeCallError(ctx *fasthttp.RequestCtx, err error) {
	if code, ok := ledger.CodeOf(err); ok {
		writeError(ctx, statusForCode(code), string(code), err.Error())
		return
	}
	switch {
	case errors.Is(err, host.ErrStopped):
		writeError(ctx, fasthttp.StatusServiceUnavailable, "unavailable", "server shutting down")
	case errors.Is(err, host.ErrNoCaller):
		writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", err.Error())
	default:
		slog.Error("call failed", "error", err, "path", string(ctx.Path()))
		writeError(ctx, fasthttp.StatusInternalServerError, "internal", "internal error")
	}
}

func statusForCode(code ledger.Code) int {
	switch code {
	case ledger.CodeNotFound, ledger.CodeNoSuchMessage:
		return fasthttp.StatusNotFound
	case ledger.CodeNotAddressee:
		return fasthttp.StatusForbidden
	case ledger.CodeInvalidAmount:
		return fasthttp.StatusBadRequest
	}
	return fasthttp.StatusInternalServerError
}
