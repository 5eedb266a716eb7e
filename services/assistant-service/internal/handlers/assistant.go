package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/nabil-hisham/medibook/services/assistant-service/internal/chat"
	"github.com/nabil-hisham/medibook/services/assistant-service/internal/meds"
)

const (
	maxHistoryMessages = 40
	maxMessageLength   = 500
	minMessageLength   = 3
)

type Completer interface {
	Complete(ctx context.Context, history []chat.Message) (string, error)
}

type MedicationLookup interface {
	Search(ctx context.Context, term string) ([]meds.Medication, error)
	Details(ctx context.Context, rxcui string) (*meds.Details, error)
}

type Quota interface {
	Allow(ctx context.Context, userID string) (bool, int, error)
}

type AssistantHandler struct {
	completer Completer
	meds      MedicationLookup
	quota     Quota
	logger    *slog.Logger
}

func NewAssistantHandler(completer Completer, lookup MedicationLookup, quota Quota, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{completer: completer, meds: lookup, quota: quota, logger: logger}
}

type chatRequest struct {
	Messages []chat.Message `json:"messages"`
}

type chatResponse struct {
	Response  string `json:"response"`
	Remaining int    `json:"remaining"`
}

func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if err := validateHistory(req.Messages); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	allowed, remaining, err := h.quota.Allow(r.Context(), userID)
	if err != nil {
		h.logger.Error("quota check failed", "err", err, "user_id", userID)
		http.Error(w, "quota check unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !allowed {
		http.Error(w, "daily limit exceeded", http.StatusTooManyRequests)
		return
	}

	answer, err := h.completer.Complete(r.Context(), req.Messages)
	if err != nil {
		if errors.Is(err, chat.ErrAllModelsFailed) {
			http.Error(w, "assistant is unavailable, try again later", http.StatusBadGateway)
			return
		}
		h.logger.Error("completion failed", "err", err, "user_id", userID)
		http.Error(w, "assistant request failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: answer, Remaining: remaining})
}

func (h *AssistantHandler) SearchMedications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	results, err := h.meds.Search(r.Context(), term)
	if err != nil {
		h.logger.Error("medication search failed", "err", err, "term", term)
		http.Error(w, "medication lookup failed", http.StatusBadGateway)
		return
	}
	if results == nil {
		results = []meds.Medication{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *AssistantHandler) MedicationDetails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rxcui := strings.TrimSpace(r.URL.Query().Get("rxcui"))
	if rxcui == "" {
		http.Error(w, "rxcui is required", http.StatusBadRequest)
		return
	}

	details, err := h.meds.Details(r.Context(), rxcui)
	if err != nil {
		h.logger.Error("medication details failed", "err", err, "rxcui", rxcui)
		http.Error(w, "medication lookup failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func validateHistory(messages []chat.Message) error {
	if len(messages) == 0 {
		return errors.New("messages must not be empty")
	}
	if len(messages) > maxHistoryMessages {
		return errors.New("conversation too long")
	}
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			return errors.New("message role must be user or assistant")
		}
		length := utf8.RuneCountInString(strings.TrimSpace(m.Content))
		if length < minMessageLength || length > maxMessageLength {
			return errors.New("message content must be 3-500 characters")
		}
	}
	if messages[len(messages)-1].Role != "user" {
		return errors.New("last message must be from the user")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
