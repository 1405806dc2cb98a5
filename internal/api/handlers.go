package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/models"
)

// chatRequest is the POST /chat body sent by the coaching layer.
type chatRequest struct {
	UserID       string `json:"user_id"`
	Message      string `json:"message"`
	ClientTempID string `json:"client_temp_id,omitempty"`
	Hour         int    `json:"hour"`
	Streak       int    `json:"streak"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.router.Route(r.Context(), req.UserID, req.Message, req.ClientTempID, models.RouteContext{
		Hour:   req.Hour,
		Streak: req.Streak,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrRetryableExternal) || errors.Is(err, models.ErrPruneFailed):
			slog.Error("Server.chatHandler: retryable routing failure", "error", err, "userID", req.UserID)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Retry("Temporarily unable to reply, please retry"))
		case errors.Is(err, models.ErrEmptyUserID) || errors.Is(err, models.ErrEmptyMessage) ||
			errors.Is(err, models.ErrMessageTooLong) || errors.Is(err, models.ErrInvalidHour) ||
			errors.Is(err, models.ErrNegativeStreak):
			slog.Warn("Server.chatHandler: validation failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		default:
			slog.Error("Server.chatHandler: routing failed", "error", err, "userID", req.UserID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to route message"))
		}
		return
	}

	slog.Info("Server.chatHandler: routed", "userID", req.UserID, "routeKind", result.RouteKind)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) usageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid date, expected YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	report, err := s.ledger.DailyReport(date)
	if err != nil {
		slog.Error("Server.usageHandler: report failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to build usage report"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
