// Package web serves the chat page, its JSON API and the session event stream.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/comigor/writer-chat/internal/chat"
	"github.com/comigor/writer-chat/internal/eventbus"
	"github.com/comigor/writer-chat/internal/logger"
	"github.com/comigor/writer-chat/internal/session"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "writerchat_session"

//go:embed templates/*.tmpl
var templateFS embed.FS

// PageInfo is the static text shown around the transcript.
type PageInfo struct {
	Title  string
	Icon   string
	Model  string
	API    string
	Footer string
}

// Server is the HTTP presentation layer.
type Server struct {
	sessions *session.Manager
	bus      *eventbus.Bus
	info     PageInfo
	page     *template.Template
	markdown *markdown
	mcp      http.Handler
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithMCP mounts an MCP endpoint at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// New builds the server and its routes.
func New(sessions *session.Manager, bus *eventbus.Bus, info PageInfo, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		bus:      bus,
		info:     info,
		page:     template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl")),
		markdown: newMarkdown(),
	}
	for _, o := range opts {
		o(s)
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Warn("server shutdown", "error", err)
		}
	}()

	logger.L.Info("starting server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/favicon.svg", s.handleFavicon)
	r.Post("/chat", s.handleChatForm)
	r.Post("/banner/dismiss", s.handleDismiss)
	r.Post("/session/reset", s.handleReset)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.Post("/messages", s.handleSendMessage)
		r.Get("/events", s.handleEvents)
	})

	if s.mcp != nil {
		r.Handle("/mcp", s.mcp)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type sendMessageRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type turnView struct {
	Role       chat.Role
	HTML       template.HTML
	Diagnostic bool
}

type pageData struct {
	PageInfo
	Turns  []turnView
	Banner string
	Busy   bool
}

// --- Handlers ---

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctrl := s.session(w, r)
	snap, err := ctrl.Snapshot()
	if err != nil {
		logger.L.Error("snapshot failed", "session", ctrl.SessionID(), "error", err)
		http.Error(w, "failed to load conversation", http.StatusInternalServerError)
		return
	}

	data := pageData{PageInfo: s.info, Banner: snap.Banner, Busy: snap.Busy()}
	for _, t := range snap.Turns {
		data.Turns = append(data.Turns, turnView{Role: t.Role, HTML: s.markdown.render(t.Content), Diagnostic: t.Diagnostic})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.page.Execute(w, data); err != nil {
		logger.L.Error("render page", "error", err)
	}
}

func (s *Server) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/svg+xml")
	fmt.Fprintf(w, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100"><text y=".9em" font-size="90">%s</text></svg>`, template.HTMLEscapeString(s.info.Icon))
}

func (s *Server) handleChatForm(w http.ResponseWriter, r *http.Request) {
	ctrl := s.session(w, r)
	prompt := r.FormValue("prompt")

	_, err := ctrl.Submit(r.Context(), prompt)
	switch {
	case err == nil, errors.Is(err, chat.ErrEmptyPrompt), errors.Is(err, chat.ErrBusy), errors.Is(err, chat.ErrClosed):
		// The page shows the outcome, or the busy state, after the redirect.
	default:
		logger.L.Error("submit failed", "session", ctrl.SessionID(), "error", err)
		http.Error(w, "failed to process prompt", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	s.session(w, r).DismissBanner()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := s.sessions.End(c.Value); err != nil {
			logger.L.Warn("ending session", "session", c.Value, "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl := s.session(w, r)
	snap, err := ctrl.Snapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctrl := s.session(w, r)

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := ctrl.Submit(r.Context(), req.Prompt)
	switch {
	case errors.Is(err, chat.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrClosed):
		writeError(w, http.StatusGone, err.Error())
	case err != nil:
		logger.L.Error("submit failed", "session", ctrl.SessionID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process prompt")
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctrl := s.session(w, r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Subscribe before the first snapshot so nothing is missed in between.
	ch := s.bus.Subscribe(ctrl.SessionID())
	defer s.bus.Unsubscribe(ctrl.SessionID(), ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snap, err := ctrl.Snapshot()
	if err != nil {
		return
	}
	if err := writeEvent(w, "snapshot", snap); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, string(ev.Type), ev.Snapshot); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// session resolves the caller's session from its cookie, starting a new one
// (and setting the cookie) when there is none.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *chat.Controller {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}
	ctrl, created := s.sessions.Resolve(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    ctrl.SessionID(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return ctrl
}

func writeEvent(w http.ResponseWriter, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
