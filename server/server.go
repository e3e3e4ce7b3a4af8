// Package server exposes the download pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sbillxx/telegrabber/conn"
	"github.com/Sbillxx/telegrabber/errs"
	"github.com/Sbillxx/telegrabber/grab"
	"github.com/Sbillxx/telegrabber/tgclient"
)

// Server serves the download API on top of the pipeline service.
type Server struct {
	grabber grab.Grabber
	client  tgclient.Client
	health  *conn.Health
	http    *http.Server
}

// New creates a server listening on addr.
func New(addr string, grabber grab.Grabber, client tgclient.Client, health *conn.Health) *Server {
	s := &Server{
		grabber: grabber,
		client:  client,
		health:  health,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/download", s.handleDownload)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the request handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).Msg("Handled request")
	})
}

type downloadRequest struct {
	Link string `json:"link"`
}

type fileInfo struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	MessageID int64  `json:"message_id"`
}

type downloadResponse struct {
	Success bool      `json:"success"`
	File    *fileInfo `json:"file,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Session   string `json:"session"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "telegrabber",
		"usage":   "POST /api/download with {\"link\": \"https://t.me/...\"}",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.client.IsConnected()
	status := "ok"
	code := http.StatusOK
	if !connected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Connected: connected,
		Session:   s.health.State().String(),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, downloadResponse{Success: false, Error: "use POST"})
		return
	}

	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Link == "" {
		writeJSON(w, http.StatusBadRequest, downloadResponse{
			Success: false,
			Error:   "request body must be JSON with a non-empty \"link\" field",
		})
		return
	}

	res, err := s.grabber.Grab(r.Context(), req.Link)
	if err != nil {
		log.Warn().Err(err).Str("link", req.Link).Msg("Download request failed")
		writeJSON(w, statusFor(err), downloadResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, downloadResponse{
		Success: true,
		File: &fileInfo{
			Path:      res.FilePath,
			Name:      res.FileName,
			SizeBytes: res.Size,
			MessageID: res.MessageID,
		},
	})
}

// statusFor maps pipeline failures onto HTTP status codes.
func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.InvalidLinkFormat, errs.UnsupportedMediaType, errs.MediaUnavailable, errs.EmptyMediaPayload:
		return http.StatusBadRequest
	case errs.PeerUnreachable:
		return http.StatusForbidden
	case errs.MessageNotFound:
		return http.StatusNotFound
	case errs.ClientNotConnected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
