// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/rs/zerolog"

	"newsletter/internal/app"
	"newsletter/internal/domain"
)

const maxFormBytes = 64 << 10

// Handlers holds what the route handlers need besides the pool.
type Handlers struct {
	Subscriptions  *app.SubscriptionService
	SubscribeRPS   float64
	SubscribeBurst int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	// the status line is already out; a failed body write has nowhere to go
	_ = json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// healthCheck answers liveness probes; it never touches the pool.
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type subscribeResponse struct {
	ID string `json:"id"`
}

func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request) {
	l := zerolog.Ctx(r.Context())

	if _, ok := PoolFrom(r.Context()); !ok {
		l.Error().Msg("connection pool missing from request context")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}

	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/x-www-form-urlencoded" {
		writeProblem(w, http.StatusUnsupportedMediaType, "Unsupported Media Type", "body must be application/x-www-form-urlencoded")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", "form body exceeds limit")
			return
		}
		writeProblem(w, http.StatusBadRequest, "Malformed Body", err.Error())
		return
	}

	sub, err := h.Subscriptions.Subscribe(r.Context(), r.PostForm.Get("name"), r.PostForm.Get("email"))
	switch {
	case errors.Is(err, domain.ErrInvalidSubscriber):
		l.Info().Err(err).Msg("rejected subscription form")
		writeProblem(w, http.StatusBadRequest, "Invalid Subscriber", err.Error())
		return
	case errors.Is(err, domain.ErrDuplicate):
		writeProblem(w, http.StatusConflict, "Already Subscribed", "email is already subscribed")
		return
	case err != nil && errors.Is(r.Context().Err(), context.DeadlineExceeded):
		// Timeout writes the 504 once we return.
		l.Warn().Err(err).Msg("subscription abandoned at request deadline")
		return
	case err != nil:
		l.Error().Err(err).Msg("store subscription failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not store subscription")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(subscribeResponse{ID: sub.ID.String()}); err != nil {
		l.Error().Err(err).Msg("failed to write subscribe body")
	}
}
