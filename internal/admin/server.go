// Package admin serves administrative commands, metrics and health over
// HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/crimson-sun/quill/internal/audit"
	"github.com/crimson-sun/quill/internal/command"
	"github.com/crimson-sun/quill/internal/metrics"
	"github.com/crimson-sun/quill/internal/model"
)

const maxCommandBytes = 1 << 20

// Commander runs administrative commands.
type Commander interface {
	Command(ctx context.Context, cmd model.Doc) (command.Reply, error)
}

// Server is the HTTP admin listener.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	commands   Commander
	metrics    *metrics.Metrics
}

// New creates a server for addr. m may be nil to omit /metrics and /healthz.
func New(addr string, c Commander, m *metrics.Metrics) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		commands: c,
		metrics:  m,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 3 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       15 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /command", s.handleCommand)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
		s.mux.Handle("GET /healthz", s.metrics.Health())
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type errorReply struct {
	OK     int    `json:"ok"`
	Code   int    `json:"code"`
	ErrMsg string `json:"errmsg"`
}

// handleCommand runs the JSON command document in the request body. The
// caller's address becomes the remote endpoint of any event it records.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd model.Doc
	body := http.MaxBytesReader(w, r.Body, maxCommandBytes)
	if err := json.NewDecoder(body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, errorReply{Code: command.CodeBadValue, ErrMsg: "command must be a JSON document: " + err.Error()})
		return
	}

	ctx := audit.NewContext(r.Context(), audit.Client{Remote: remoteEndpoint(r.RemoteAddr)})
	reply, err := s.commands.Command(ctx, cmd)
	if err != nil {
		code := command.CodeOf(err)
		msg := err.Error()
		var ce *command.Error
		if errors.As(err, &ce) {
			msg = ce.Message
		}
		writeJSON(w, statusFor(code), errorReply{Code: code, ErrMsg: msg})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func statusFor(code int) int {
	switch code {
	case command.CodeCommandNotFound:
		return http.StatusNotFound
	case command.CodeUnauthorized, command.CodeAuthenticationFailed:
		return http.StatusForbidden
	case command.CodeInternalError, command.CodeRotationFailed, command.CodeFileRenameFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func remoteEndpoint(addr string) model.Endpoint {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return model.Endpoint{IP: addr}
	}
	n, _ := strconv.Atoi(port)
	return model.Endpoint{IP: host, Port: n}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("admin: write reply failed", "error", err)
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener serves on ln until Shutdown.
func (s *Server) StartOnListener(ln net.Listener) error {
	slog.Info("admin server listening", "addr", ln.Addr().String())
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
