package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// requestID returns the ID addRequestIDMiddleware gave the request.
func requestID(ctx context.Context) string {
	id, ok := ctx.Value(requestIDKey{}).(string)
	if !ok {
		return "-"
	}
	return id
}

// addRequestIDMiddleware tags every request with a random ID, which is
// echoed in the X-Request-ID header and in the logs.
func addRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("[%s] Method: %s URI: %s", requestID(r.Context()), r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics in handlers, logs them, and
// answers with an Internal Server Error.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recoveryErr := recover()
			if recoveryErr != nil {
				log.Criticalf("[%s] Fatal error: %+v", requestID(r.Context()), recoveryErr)
				log.Criticalf("Stack trace: %s", debug.Stack())
				sendErr(w, newHandlerError(http.StatusInternalServerError, internalErrorMessage))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func setJSONMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func sendErr(w http.ResponseWriter, hErr *HandlerError) {
	sendJSON(w, hErr.Code, &errorResponse{ErrorCode: hErr.Code, ErrorMessage: hErr.Message})
}

func sendJSON(w http.ResponseWriter, status int, response interface{}) {
	b, err := json.Marshal(response)
	if err != nil {
		log.Errorf("Failed to encode a response: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, err = w.Write(b)
	if err != nil {
		log.Debugf("Failed to write a response: %s", err)
	}
}
