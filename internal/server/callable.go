package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/teemow/calsync/internal/calsync"
	"github.com/teemow/calsync/internal/instrumentation"
	"github.com/teemow/calsync/internal/logging"
)

// maxCallableBody bounds callable request bodies.
const maxCallableBody = 1 << 20

type callableRequest struct {
	Data json.RawMessage `json:"data"`
}

type callableResponse struct {
	Result any `json:"result"`
}

type callableError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type callableErrorResponse struct {
	Error callableError `json:"error"`
}

// CallableHandler serves POST /callable/{name}. Requests carry
// {"data": ...} and are answered with {"result": ...} or
// {"error": {"status": ..., "message": ...}}.
func CallableHandler(sc *ServerContext, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		caller := CallerFromContext(r.Context())

		// Anonymous bodies are never read; the operation rejects the caller.
		var req callableRequest
		if caller != "" {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxCallableBody))
			if err != nil {
				writeCallableError(w, calsync.InvalidArgument("failed to read request body"))
				return
			}
			if len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					writeCallableError(w, calsync.InvalidArgument("request body must be a JSON object with a data field"))
					return
				}
			}
		}

		result, err := sc.Invoke(r.Context(), instrumentation.SurfaceHTTP, name, caller, req.Data)
		if errors.Is(err, calsync.ErrUnknownCallable) {
			writeJSON(w, http.StatusNotFound, callableErrorResponse{
				Error: callableError{Status: "NOT_FOUND", Message: "unknown callable " + name},
			})
			return
		}
		if err != nil {
			if calsync.CodeOf(err) == calsync.CodeInternal {
				logger.Error("Callable failed", logging.Operation(name), logging.Err(err))
			}
			writeCallableError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, callableResponse{Result: result})
	})
}

func writeCallableError(w http.ResponseWriter, err error) {
	code := calsync.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), callableErrorResponse{
		Error: callableError{Status: code.Status(), Message: calsync.PublicMessage(err)},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
