// Package coordinator is the dispatch-side HTTP server the terminals poll:
// a dashboard posts events into per-role queues, terminals take them one at
// a time and post their responses back.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/msageha/uri/internal/clock"
	"github.com/msageha/uri/internal/logging"
	"github.com/msageha/uri/internal/model"
	"github.com/msageha/uri/templates"
)

const maxRequestBody = 64 << 10

type queuedEvent struct {
	Event    string
	TaskText string
	TaskID   string
}

// Server holds the queues and the response log in memory. Nothing survives
// a restart.
type Server struct {
	clock  clock.Clock
	logger *logging.Logger
	newID  func() string

	queueLimit int
	logLimit   int

	mu           sync.Mutex
	broadcast    []queuedEvent
	roleQueues   map[model.Role][]queuedEvent
	latestEvent  *string
	latestTarget model.Role
	responses    []string // newest first
}

type Options struct {
	QueueLimit       int
	ResponseLogLimit int
	Clock            clock.Clock
	Logger           *logging.Logger
}

func New(opts Options) *Server {
	if opts.QueueLimit <= 0 {
		opts.QueueLimit = model.DefaultQueueLimit
	}
	if opts.ResponseLogLimit <= 0 {
		opts.ResponseLogLimit = model.DefaultResponseLogLimit
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Server{
		clock:        opts.Clock,
		logger:       opts.Logger.With("coordinator"),
		newID:        func() string { return uuid.New().String() },
		queueLimit:   opts.QueueLimit,
		logLimit:     opts.ResponseLogLimit,
		roleQueues:   map[model.Role][]queuedEvent{model.RoleLeft: nil, model.RoleRight: nil},
		latestTarget: model.RoleAll,
	}
}

// Router wires the HTTP API.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)
	r.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
	// Full paths on the root router so a method mismatch gets 405.
	r.HandleFunc("/api/send", s.handleSend).Methods(http.MethodPost)
	r.HandleFunc("/api/poll", s.handlePoll).Methods(http.MethodGet)
	r.HandleFunc("/api/response", s.handleResponse).Methods(http.MethodPost)
	r.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("%s %s status=%d took=%s", r.Method, r.URL.Path, rec.code, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a JSON object leniently: an absent or unparsable body
// decodes as empty.
func decodeBody(r *http.Request, v any) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil || len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}

func (s *Server) queueSizesLocked() model.QueueSizes {
	return model.QueueSizes{
		All:   len(s.broadcast),
		Left:  len(s.roleQueues[model.RoleLeft]),
		Right: len(s.roleQueues[model.RoleRight]),
	}
}

// push appends ev, dropping the oldest entries beyond the limit.
func (s *Server) push(q []queuedEvent, ev queuedEvent) []queuedEvent {
	q = append(q, ev)
	if over := len(q) - s.queueLimit; over > 0 {
		q = append(q[:0:0], q[over:]...)
	}
	return q
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req model.SendRequest
	decodeBody(r, &req)

	if strings.TrimSpace(req.Event) == "" {
		writeJSON(w, http.StatusBadRequest, model.AckResponse{Error: "Missing event"})
		return
	}
	target := strings.ToUpper(strings.TrimSpace(req.Target))
	if target == "" {
		target = string(model.RoleAll)
	}
	if !model.IsValidRole(target) {
		writeJSON(w, http.StatusBadRequest, model.AckResponse{Error: "Invalid target. Use ALL/LEFT/RIGHT"})
		return
	}

	ev := queuedEvent{Event: req.Event, TaskText: req.TaskText, TaskID: req.TaskID}
	if ev.Event == model.EventTaskAssigned && ev.TaskID == "" {
		ev.TaskID = s.newID()
	}

	s.mu.Lock()
	role := model.Role(target)
	if role == model.RoleAll {
		s.broadcast = s.push(s.broadcast, ev)
	} else {
		s.roleQueues[role] = s.push(s.roleQueues[role], ev)
	}
	event := ev.Event
	s.latestEvent = &event
	s.latestTarget = role
	sizes := s.queueSizesLocked()
	s.mu.Unlock()

	s.logger.Info("queued event=%s target=%s task_id=%q", ev.Event, role, ev.TaskID)
	writeJSON(w, http.StatusOK, model.SendResponse{OK: true, TaskID: ev.TaskID, QueueSizes: sizes})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	role := model.Role(strings.ToUpper(r.URL.Query().Get("role")))

	s.mu.Lock()
	var (
		ev     queuedEvent
		target model.Role
		found  bool
	)
	if q, ok := s.roleQueues[role]; ok && len(q) > 0 {
		ev, s.roleQueues[role], target, found = q[0], q[1:], role, true
	} else if len(s.broadcast) > 0 {
		ev, s.broadcast, target, found = s.broadcast[0], s.broadcast[1:], model.RoleAll, true
	}
	sizes := s.queueSizesLocked()
	s.mu.Unlock()

	resp := model.PollResponse{QueueSizes: sizes}
	if found {
		t := string(target)
		resp.Event = optional(ev.Event)
		resp.TaskText = optional(ev.TaskText)
		resp.TaskID = optional(ev.TaskID)
		resp.Target = &t
		s.logger.Debug("delivered event=%s target=%s to role=%s", ev.Event, target, role)
	}
	writeJSON(w, http.StatusOK, resp)
}

// responseBody keeps fields optional so absent and empty differ from the
// defaults below.
type responseBody struct {
	Code  *string `json:"code"`
	Label *string `json:"label"`
	User  *string `json:"user"`
	Role  *string `json:"role"`
}

func valueOr(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	var body responseBody
	decodeBody(r, &body)

	code, label := valueOr(body.Code, ""), valueOr(body.Label, "")
	if code == "" && label == "" {
		writeJSON(w, http.StatusBadRequest, model.AckResponse{Error: "Missing code/label"})
		return
	}
	user := valueOr(body.User, "PHONE")
	role := strings.ToUpper(valueOr(body.Role, "UNASSIGNED"))

	line := fmt.Sprintf("[%s] [%s] %s (%s) @ %s", role, user, label, code, s.clock.Now().Format("15:04:05"))

	s.mu.Lock()
	s.responses = append([]string{line}, s.responses...)
	if len(s.responses) > s.logLimit {
		s.responses = s.responses[:s.logLimit]
	}
	s.mu.Unlock()

	s.logger.Info("response %s", line)
	writeJSON(w, http.StatusOK, model.AckResponse{OK: true})
}

// Status returns a copy of the dashboard view.
func (s *Server) Status() model.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := string(s.latestTarget)
	st := model.StatusResponse{
		LatestTarget: &target,
		Responses:    append([]string{}, s.responses...),
		QueueSizes:   s.queueSizesLocked(),
	}
	if s.latestEvent != nil {
		ev := *s.latestEvent
		st.LatestEvent = &ev
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := templates.FS.ReadFile("dashboard.html")
	if err != nil {
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

// ListenAndServe serves h on addr until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *logging.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("coordinator listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("coordinator shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
