// Package api exposes the runner over HTTP. Every submitted job runs to
// completion inside the request, in its own environment.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"stepci/internal/app"
	"stepci/internal/core"
	"stepci/internal/report"
)

// maxHistory bounds how many finished jobs the server remembers
const maxHistory = 200

type entry struct {
	id      string
	errKind string
	errMsg  string
	result  *report.JobResult
}

type Server struct {
	factory *app.Factory
	log     logrus.FieldLogger

	mu    sync.Mutex
	seq   int
	jobs  map[string]*entry
	order []string

	// dirs holds one lock per working directory; jobs in the same
	// directory run one at a time.
	dirs map[string]*sync.Mutex
}

func NewServer(factory *app.Factory, log logrus.FieldLogger) *Server {
	return &Server{
		factory: factory,
		log:     log,
		jobs:    make(map[string]*entry),
		dirs:    make(map[string]*sync.Mutex),
	}
}

// lockDir blocks until no other job runs in dir and returns the unlock func
func (s *Server) lockDir(dir string) func() {
	s.mu.Lock()
	l, ok := s.dirs[dir]
	if !ok {
		l = &sync.Mutex{}
		s.dirs[dir] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Routes builds the chi router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/schema", s.handleSchema)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleSubmitJob)
		r.Get("/", s.handleListJobs)
		r.Get("/{id}", s.handleGetJob)
		r.Get("/{id}/steps/{step}/log", s.handleStepLog)
	})
	r.Get("/ledger/verify", s.handleVerifyLedger)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).Round(time.Millisecond),
			"req_id":   middleware.GetReqID(r.Context()),
		}).Info("request")
	})
}

// JobResponse is a finished job as returned by the API
type JobResponse struct {
	ID        string `json:"id"`
	ErrorKind string `json:"errorKind,omitempty"`
	Error     string `json:"error,omitempty"`
	report.JobView
}

// JobSummary is one line of GET /jobs
type JobSummary struct {
	ID      string    `json:"id"`
	Job     string    `json:"job"`
	Success bool      `json:"success"`
	Started time.Time `json:"started"`
}

// POST /jobs?packages=...&only=a,b  with a YAML job definition as body
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	job, err := core.ParseJob(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var opts core.RunOptions
	q := r.URL.Query()
	if q.Has("packages") {
		pkgs := q.Get("packages")
		opts.Packages = &pkgs
	}
	if only := q.Get("only"); only != "" {
		opts.Only = strings.Split(only, ",")
	}

	runner, err := s.factory.Runner("", nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	runner.Log = s.log.WithField("req_id", middleware.GetReqID(r.Context()))

	unlock := s.lockDir(runner.WorkDir)
	rec, runErr := runner.Run(r.Context(), job, opts)
	unlock()
	e := s.store(rec, runErr)

	writeJSON(w, http.StatusOK, toResponse(e))
}

func (s *Server) store(rec *report.JobResult, runErr error) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e := &entry{id: fmt.Sprintf("j-%d", s.seq), result: rec}
	if runErr != nil {
		e.errKind, _ = core.Classify(runErr)
		e.errMsg = runErr.Error()
	}
	s.jobs[e.id] = e
	s.order = append(s.order, e.id)
	if len(s.order) > maxHistory {
		delete(s.jobs, s.order[0])
		s.order = s.order[1:]
	}
	return e
}

func (s *Server) lookup(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	return e, ok
}

func toResponse(e *entry) JobResponse {
	return JobResponse{ID: e.id, ErrorKind: e.errKind, Error: e.errMsg, JobView: report.View(e.result)}
}

// GET /jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]JobSummary, 0, len(s.order))
	for _, id := range s.order {
		e := s.jobs[id]
		out = append(out, JobSummary{ID: id, Job: e.result.Job, Success: e.result.Success(), Started: e.result.Started.UTC()})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

// GET /jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(e))
}

// GET /jobs/{id}/steps/{step}/log
func (s *Server) handleStepLog(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	res, ok := e.result.Find(chi.URLParam(r, "step"))
	if !ok {
		writeError(w, http.StatusNotFound, "step not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(res.Output())
}

// GET /ledger/verify
func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	l := s.factory.Ledger
	if l == nil {
		writeError(w, http.StatusNotFound, "no ledger configured")
		return
	}
	if err := l.Verify(); err != nil {
		writeError(w, http.StatusConflict, "ledger verification failed: "+err.Error())
		return
	}
	if err := l.VerifyLogs(); err != nil {
		writeError(w, http.StatusConflict, "ledger log verification failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "blocks": l.Len()})
}

// GET /schema
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.Schema())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
