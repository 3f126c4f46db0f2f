package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"i4.energy/across/lorasend/radio"
)

// maxRequestBody bounds POST /tx bodies. The radio limit is checked by the
// session itself.
const maxRequestBody = 4096

// Radio is what the HTTP server needs from the radio link.
type Radio interface {
	Transmitter
	Snapshot() radio.Snapshot
}

// Server handles incoming HTTP requests for interacting with the
// configured radio
type Server struct {
	Logger *slog.Logger
	Radio  Radio

	once   sync.Once
	router chi.Router
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(func() {
		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/tx", s.handleTx)
		s.router = r
	})
	s.router.ServeHTTP(w, r)
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	s.sendJSON(w, statusCode, ErrorResponse{Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.Radio.Snapshot()
	status := http.StatusOK
	if snap.State == radio.StateDisconnected.String() {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, map[string]string{"status": snap.State})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.Radio.Snapshot())
}

// handleTx sends the raw request body as one frame
func (s *Server) handleTx(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	frame, err := s.Radio.Transmit(payload)
	if err != nil {
		s.Logger.Error("Failed to transmit frame", "error", err, "bytes", len(payload))
		switch {
		case errors.Is(err, radio.ErrPayloadTooLarge):
			s.sendError(w, err.Error(), http.StatusRequestEntityTooLarge)
		case errors.Is(err, radio.ErrDisconnected), errors.Is(err, radio.ErrNotReady):
			s.sendError(w, err.Error(), http.StatusServiceUnavailable)
		default:
			s.sendError(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	s.Logger.Info("Frame sent", "frame", frame, "bytes", len(payload))

	type TxResponse struct {
		Frame uint64 `json:"frame"`
	}
	s.sendJSON(w, http.StatusOK, TxResponse{Frame: frame})
}
