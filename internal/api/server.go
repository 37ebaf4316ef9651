package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"genai-chatbot/internal/repository"
	"genai-chatbot/internal/usecase"
)

const welcomeMessage = "Welcome to the GENAI learning chatbot"

// ChatService answers one question for one user.
type ChatService interface {
	Chat(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
}

type Server struct {
	router *chi.Mux
	chat   ChatService
	mode   repository.Mode
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(chat ChatService, mode repository.Mode, logger *slog.Logger) (*Server, error) {
	if chat == nil {
		return nil, errors.New("api: chat service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(correlationID)
	router.Use(requestLogger(logger))
	router.Use(cors.Handler(cors.Options{
		// Every origin is echoed back so credentialed requests are accepted.
		AllowOriginFunc:  func(*http.Request, string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{correlationHeader},
		AllowCredentials: true,
	}))

	s := &Server{
		router: router,
		chat:   chat,
		mode:   mode,
		logger: logger,
	}

	router.Get("/", s.welcome)
	router.Get("/health", s.health)
	router.Post("/chat", s.handleChat)

	return s, nil
}

// Handler exposes the router for embedding, e.g. behind the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", s.srv.Addr, "history_mode", s.mode)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: Start: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) welcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, welcomeResponse{Message: welcomeMessage})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", HistoryMode: string(s.mode)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, usecase.ErrorInvalidInput, "request body must be a JSON object with string fields user_id and question")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, usecase.ErrorInvalidInput, msg)
		return
	}

	out, err := s.chat.Chat(r.Context(), usecase.ChatInput{UserID: *req.UserID, Question: *req.Question})
	if err != nil {
		code, reason := classify(err)
		status := statusFor(code)
		loggerFrom(r.Context(), s.logger).Error("chat failed",
			"user_id", *req.UserID,
			"code", code,
			"reason", reason,
			"status", status,
			"error", err,
		)
		writeError(w, status, code, messageFor(code))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: out.Response})
}

func classify(err error) (usecase.ErrorCode, string) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		return ucErr.Code, ucErr.Reason
	}
	return usecase.ErrorInternal, "unexpected"
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusUnprocessableEntity
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(code usecase.ErrorCode) string {
	switch code {
	case usecase.ErrorRateLimited:
		return "the language model is rate limited, try again later"
	case usecase.ErrorUpstream:
		return "the language model request failed"
	case usecase.ErrorInvalidInput:
		return "invalid request"
	default:
		return "internal error"
	}
}

// decodeJSON reads exactly one JSON value from body; anything after it other
// than whitespace is rejected.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("api: unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code usecase.ErrorCode, msg string) {
	writeJSON(w, status, errorResponse{Error: string(code), Message: msg})
}
