package devserver

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wormchat/internal/transport"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	defer func() {
		code := strconv.Itoa(status)
		s.metrics.requests.WithLabelValues(code).Inc()
		s.metrics.duration.WithLabelValues(code).Observe(time.Since(start).Seconds())
	}()

	if s.apiKey != "" {
		got := r.Header.Get(transport.HeaderFunctionsKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			status = http.StatusUnauthorized
			writeJSON(w, status, map[string]string{"error": "invalid function key"})
			return
		}
	}

	var req postRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		status = http.StatusBadRequest
		s.metrics.validation.Inc()
		writeJSON(w, status, []string{"request body must be a JSON object"})
		return
	}

	if details := s.validationDetails(req); len(details) > 0 {
		status = http.StatusBadRequest
		s.metrics.validation.Inc()
		writeJSON(w, status, details)
		return
	}

	id, turn := s.recordTurn(req)

	reply, err := s.responder.Respond(r.Context(), Turn{
		ConversationID: id,
		Email:          req.MailAddress,
		Text:           req.ChatText,
		Number:         turn,
	})
	if err != nil {
		status = http.StatusBadGateway
		s.logger.Warn("responder failed", zap.String("conversation", id), zap.Error(err))
		http.Error(w, "upstream AI service failed", status)
		return
	}

	writeJSON(w, status, transport.Response{ID: id, OutputText: reply})
}

// recordTurn assigns a conversation id when the request has none (or an
// unknown one) and increments its turn counter.
func (s *Server) recordTurn(req postRequest) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	id := req.ID
	c, ok := s.conversations[id]
	if id == "" || !ok {
		if id == "" {
			id = uuid.NewString()
		}
		c = &conversation{Email: req.MailAddress, CreatedAt: now}
		s.conversations[id] = c
		s.metrics.conversations.Inc()
		s.logger.Info("conversation started", zap.String("conversation", id))
	}
	c.Turns++
	c.UpdatedAt = now
	return id, c.Turns
}

// validationDetails renders validator failures as the plain messages the
// client shows verbatim.
func (s *Server) validationDetails(req postRequest) []string {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			details = append(details, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		case "max":
			details = append(details, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
