package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"autopost/internal/job"
	"autopost/internal/lock"
	"autopost/internal/poster"
	"autopost/internal/quota"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

// Engine is the slice of *poster.Service the API needs.
type Engine interface {
	Execute(ctx context.Context, channelID string) (poster.ExecutionReport, error)
	ExecuteAll(ctx context.Context, force bool) (poster.SweepReport, error)
	CandidateCount(ctx context.Context, channelID string) (int, error)
	Status(ctx context.Context) (poster.Snapshot, error)
}

// Jobs is the slice of *job.Tracker the API needs.
type Jobs interface {
	Enqueue(ctx context.Context, channelID string) (string, error)
	Get(ctx context.Context, jobID string) (storage.JobRecord, bool, error)
}

func (s *Service) handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return s.withAuth(h) }

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /api/run/{channel}", wrap(s.handleRun))
	mux.HandleFunc("POST /api/enqueue/{channel}", wrap(s.handleEnqueue))
	mux.HandleFunc("GET /api/jobs/{id}", wrap(s.handleJob))
	mux.HandleFunc("POST /api/run-all", wrap(s.handleRunAll))
	mux.HandleFunc("GET /api/candidates/{channel}", wrap(s.handleCandidates))
	mux.HandleFunc("GET /api/status", wrap(s.handleStatus))
	return mux
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	rep, err := s.eng.Execute(r.Context(), r.PathValue("channel"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Service) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	id, err := s.jobs.Enqueue(r.Context(), r.PathValue("channel"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

func (s *Service) handleJob(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, jobView(rec))
}

func (s *Service) handleRunAll(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"
	sweep, err := s.eng.ExecuteAll(r.Context(), force)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sweep)
}

func (s *Service) handleCandidates(w http.ResponseWriter, r *http.Request) {
	n, err := s.eng.CandidateCount(r.Context(), r.PathValue("channel"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.eng.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// jobRecord is the wire shape for a polled job.
type jobRecord struct {
	JobID        string `json:"job_id"`
	ChannelID    string `json:"channel_id"`
	Status       string `json:"status"`
	Message      string `json:"message,omitempty"`
	PostsCreated int    `json:"posts_created"`
}

func jobView(rec storage.JobRecord) jobRecord {
	return jobRecord{
		JobID:        rec.JobID,
		ChannelID:    rec.ChannelID,
		Status:       string(rec.Status),
		Message:      rec.Message,
		PostsCreated: rec.PostsCreated,
	}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", logx.Err(err))
	}
}

// writeError maps the engine's error taxonomy onto HTTP statuses.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, poster.ErrUnknownChannel):
		status = http.StatusNotFound
	case errors.Is(err, lock.ErrContended):
		status = http.StatusConflict
	case errors.Is(err, quota.ErrExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, poster.ErrMissingConfig):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, job.ErrQueueFull):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.log.Error("api request failed", logx.Err(err))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
