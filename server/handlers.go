package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/xhad/askflare/internal/errs"
	"github.com/xhad/askflare/internal/models"
	"go.uber.org/zap"
)

const unavailableMessage = "unable to process the request right now"

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message" validate:"required"`
}

type ChatResponse struct {
	Classification models.Classification `json:"classification"`
	Response       string                `json:"response"`
	Citations      []models.Citation     `json:"citations,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, err string, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: err, Message: message})
}

// validateMessage checks a chat message is present and within maxLen runes.
func (s *Server) validateMessage(req ChatRequest) map[string]string {
	req.Message = strings.TrimSpace(req.Message)
	err := s.validate.Struct(req)
	if err == nil {
		err = s.validate.Var(req.Message, fmt.Sprintf("max=%d", s.config.MaxMessageLen))
	}
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["message"] = err.Error()
		return fields
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fields["message"] = "message is required"
		case "max":
			fields["message"] = fmt.Sprintf("message must be at most %s characters", fe.Param())
		default:
			fields["message"] = fmt.Sprintf("message validation failed on '%s'", fe.Tag())
		}
	}
	return fields
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be a JSON object")
		return
	}
	if fields := s.validateMessage(req); fields != nil {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "Validation failed",
			Fields:  fields,
		})
		return
	}

	result, err := s.resolver.Resolve(r.Context(), strings.TrimSpace(req.Message))
	if err != nil {
		if errs.KindOf(err) == errs.KindInvalidInput {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("chat request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("kind", string(errs.KindOf(err))),
			zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "unavailable", unavailableMessage)
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{
		Classification: result.Classification,
		Response:       result.Response,
		Citations:      result.Citations,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready.Ping(ctx); err != nil {
		s.logger.Error("vector store health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":       "not_ready",
			"vector_store": "unhealthy",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":       "ready",
		"vector_store": "healthy",
	})
}
