package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autopost/internal/lock"
	"autopost/internal/poster"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

type fakeEngine struct {
	report poster.ExecutionReport
	err    error
}

func (f *fakeEngine) Execute(context.Context, string) (poster.ExecutionReport, error) {
	return f.report, f.err
}

func (f *fakeEngine) ExecuteAll(context.Context, bool) (poster.SweepReport, error) {
	return poster.SweepReport{Executed: 1}, nil
}

func (f *fakeEngine) CandidateCount(context.Context, string) (int, error) { return 2, nil }

func (f *fakeEngine) Status(context.Context) (poster.Snapshot, error) {
	return poster.Snapshot{}, nil
}

type fakeJobs struct {
	rec storage.JobRecord
	err error
}

func (f *fakeJobs) Enqueue(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "job-1", nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (storage.JobRecord, bool, error) {
	if id != f.rec.JobID {
		return storage.JobRecord{}, false, nil
	}
	return f.rec, true, nil
}

func newTestServer(eng Engine, jobs Jobs, token string) *Service {
	return New(Config{Enabled: true, Token: token}, eng, jobs, logx.Nop())
}

func TestRunReturnsReport(t *testing.T) {
	eng := &fakeEngine{report: poster.ExecutionReport{ChannelID: "genre_7", PostsCreated: 2}}
	s := newTestServer(eng, &fakeJobs{}, "")

	rr := httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/run/genre_7", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var rep poster.ExecutionReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.PostsCreated != 2 {
		t.Fatalf("posts = %d, want 2", rep.PostsCreated)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown channel", poster.ErrUnknownChannel, http.StatusNotFound},
		{"contended", lock.ErrContended, http.StatusConflict},
		{"misconfigured", poster.ErrMissingConfig, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeEngine{err: tc.err}, &fakeJobs{}, "")
			rr := httptest.NewRecorder()
			s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/run/x", nil))
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestEnqueueAndPoll(t *testing.T) {
	jobs := &fakeJobs{rec: storage.JobRecord{
		JobID: "job-1", ChannelID: "genre_7", Status: storage.JobError, Message: "LockContention",
	}}
	s := newTestServer(&fakeEngine{}, jobs, "")

	rr := httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/enqueue/genre_7", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, want 202", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "job-1") {
		t.Fatalf("enqueue body = %q, want job id", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("poll status = %d, want 200", rr.Code)
	}
	var rec jobRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Message != "LockContention" {
		t.Fatalf("message = %q, want LockContention", rec.Message)
	}

	rr = httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", rr.Code)
	}
}

func TestBearerToken(t *testing.T) {
	s := newTestServer(&fakeEngine{}, &fakeJobs{}, "sekrit")

	rr := httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no-token status = %d, want 401", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rr = httptest.NewRecorder()
	s.handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("token status = %d, want 200", rr.Code)
	}

	// Health stays open for probes.
	rr = httptest.NewRecorder()
	s.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rr.Code)
	}
}
