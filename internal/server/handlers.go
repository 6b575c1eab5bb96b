package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/afeedhshaji/mobai-relay/pkg/llm"
	"github.com/rs/zerolog/log"
)

// TokenHeader carries the shared client token when one is configured.
const TokenHeader = "X-APP-TOKEN"

// maxBodyBytes bounds an incoming request body.
const maxBodyBytes = 64 << 10

// statusClientClosed is recorded when the caller hung up before the reply
// was ready. Nothing is written to the body.
const statusClientClosed = 499

// Handlers exposes the responder over HTTP
type Handlers struct {
	responder llm.Responder
	token     string
}

// NewHandlers creates handlers around responder. An empty token disables the
// client token check.
func NewHandlers(responder llm.Responder, token string) *Handlers {
	return &Handlers{responder: responder, token: token}
}

// Routes returns the mux with every route registered and wrapped in the
// CORS and request logging middleware.
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", h.HandlePing)
	mux.HandleFunc("/assist", h.HandleAssist)
	mux.HandleFunc("/chat", h.HandleAssist)
	return logRequests(cors(mux))
}

// HandlePing handles GET /ping
func (h *Handlers) HandlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	h.json(w, http.StatusOK, PingResponse{Status: "ok", Message: "MobAI backend is running"})
}

// HandleAssist handles POST /assist and POST /chat
func (h *Handlers) HandleAssist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r)
		return
	}
	if !h.authorized(r) {
		h.errorWithCode(w, "unauthorized", "UNAUTHORIZED", http.StatusUnauthorized)
		return
	}

	var req AssistRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		h.errorWithCode(w, "invalid JSON body", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	message := req.Text()
	if strings.TrimSpace(message) == "" {
		h.errorWithCode(w, "no message provided", "INVALID_REQUEST", http.StatusBadRequest)
		return
	}

	reply, err := h.responder.Reply(r.Context(), message)
	if err != nil {
		if r.Context().Err() != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Client went away before the reply")
			w.WriteHeader(statusClientClosed)
			return
		}
		h.replyError(w, err)
		return
	}

	h.json(w, http.StatusOK, AssistResponse{Reply: reply})
}

func (h *Handlers) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.Header.Get(TokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// replyError maps responder failures to protocol errors, keeping busy,
// transient, fatal and configuration failures apart.
func (h *Handlers) replyError(w http.ResponseWriter, err error) {
	switch {
	case llm.IsServerBusy(err):
		w.Header().Set("Retry-After", "1")
		h.errorWithCode(w, "server busy; try again later", "SERVER_BUSY", http.StatusServiceUnavailable)
	case llm.IsTransient(err):
		h.errorWithCode(w, "assistant error: "+err.Error(), "UPSTREAM_UNAVAILABLE", http.StatusBadGateway)
	case llm.IsFatal(err):
		h.errorWithCode(w, "assistant error: "+err.Error(), "UPSTREAM_REJECTED", http.StatusBadGateway)
	case llm.IsConfiguration(err):
		h.errorWithCode(w, "assistant error: "+err.Error(), "MISCONFIGURED", http.StatusInternalServerError)
	default:
		h.errorWithCode(w, "assistant error: "+err.Error(), "INTERNAL", http.StatusInternalServerError)
	}
}

func (h *Handlers) json(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handlers) errorWithCode(w http.ResponseWriter, message, code string, status int) {
	h.json(w, status, ErrorResponse{Error: message, Code: code})
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.errorWithCode(w, "method "+r.Method+" not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
}
