package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/dtq/internal/config"
	"github.com/fairyhunter13/dtq/internal/domain"
	"github.com/fairyhunter13/dtq/internal/usecase"
)

// Server bundles the handler dependencies.
type Server struct {
	cfg      config.Config
	svc      *usecase.Service
	validate *validator.Validate
}

// NewServer constructs the handler set.
func NewServer(cfg config.Config, svc *usecase.Service) *Server {
	return &Server{cfg: cfg, svc: svc, validate: validator.New()}
}

// CreateJobRequest is the ingestion body.
type CreateJobRequest struct {
	Payload      domain.JobPayload `json:"payload"`
	PartitionKey string            `json:"partition_key" validate:"max=200"`
}

// TransitionRequest drives the operator transition endpoint.
type TransitionRequest struct {
	ToStatus string `json:"to_status" validate:"required"`
	Reason   string `json:"reason" validate:"max=500"`
}

// CancelRequest optionally carries a cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// JobResponse is the wire form of a job with payload and result decoded.
type JobResponse struct {
	ID                     string           `json:"id"`
	Status                 domain.JobStatus `json:"status"`
	CreatedAt              time.Time        `json:"created_at"`
	UpdatedAt              time.Time        `json:"updated_at"`
	Attempts               int              `json:"attempts"`
	PartitionKey           string           `json:"partition_key,omitempty"`
	TaskType               string           `json:"task_type"`
	Payload                map[string]any   `json:"payload"`
	Result                 map[string]any   `json:"result,omitempty"`
	LeaseOwner             string           `json:"lease_owner,omitempty"`
	NextAttemptAt          *time.Time       `json:"next_attempt_at,omitempty"`
	LastStatusChangeReason string           `json:"last_status_change_reason,omitempty"`
	LastStatusActor        string           `json:"last_status_actor,omitempty"`
}

func toJobResponse(j domain.Job) JobResponse {
	resp := JobResponse{
		ID:                     j.ID,
		Status:                 j.Status,
		CreatedAt:              j.CreatedAt,
		UpdatedAt:              j.UpdatedAt,
		Attempts:               j.Attempts,
		PartitionKey:           j.PartitionKey,
		TaskType:               j.TaskType,
		LeaseOwner:             j.LeaseOwner,
		LastStatusChangeReason: j.LastStatusChangeReason,
		LastStatusActor:        j.LastStatusActor,
	}
	if j.PayloadJSON != "" {
		_ = json.Unmarshal([]byte(j.PayloadJSON), &resp.Payload)
	}
	if j.Result != "" {
		_ = json.Unmarshal([]byte(j.Result), &resp.Result)
	}
	if !j.NextAttemptAt.IsZero() {
		t := j.NextAttemptAt
		resp.NextAttemptAt = &t
	}
	return resp
}

func (s *Server) decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: unreadable body", domain.ErrInvalidArgument)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err.Error())
	}
	return nil
}

// CreateJob accepts a job for asynchronous execution and responds 202.
func (s *Server) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	if req.Payload.TaskType == "" {
		writeError(w, r, fmt.Errorf("%w: payload.task_type is required", domain.ErrInvalidArgument), nil)
		return
	}
	j, err := s.svc.Create(r.Context(), req.Payload, req.PartitionKey)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	LoggerFrom(r).Info("job accepted", "job_id", j.ID, "task_type", j.TaskType)
	writeJSON(w, http.StatusAccepted, toJobResponse(j))
}

// ListJobs returns a page of jobs ordered by id.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit < 1 || limit > 1000 {
		writeError(w, r, fmt.Errorf("%w: limit must be in 1..1000", domain.ErrInvalidArgument), nil)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, r, fmt.Errorf("%w: offset must be >= 0", domain.ErrInvalidArgument), nil)
		return
	}
	jobs, err := s.svc.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetJob returns a single job by id.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// GetJobEvents returns the append-only event trail for a job, oldest first.
func (s *Server) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// CancelJob parks a job in CANCELLED regardless of its current state.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "User requested cancellation"
	}
	j, err := s.svc.Cancel(r.Context(), chi.URLParam(r, "id"), usecase.ActorUser, reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// TransitionJob applies an operator-initiated status change under the UI
// transition policy.
func (s *Server) TransitionJob(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	to, err := domain.ParseJobStatus(strings.ToUpper(req.ToStatus))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	j, err := s.svc.TransitionFromUI(r.Context(), chi.URLParam(r, "id"), to, req.Reason)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// Metrics serves the aggregate JSON counters backing the dashboard.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.svc.GetMetrics(r.Context())
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GenerateJobs creates a batch of synthetic jobs. Disabled in production.
func (s *Server) GenerateJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.IsProduction() {
		writeError(w, r, fmt.Errorf("%w: generation disabled in production", domain.ErrForbidden), nil)
		return
	}
	var req usecase.GenerateRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err, nil)
		return
	}
	res, err := s.svc.GenerateJobs(r.Context(), req)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	LoggerFrom(r).Info("synthetic batch created", "created", res.Created, "requested", res.Requested)
	writeJSON(w, http.StatusAccepted, res)
}

// HealthLive reports process liveness.
func (s *Server) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady reports readiness to serve: the substrate must answer a ping.
func (s *Server) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"redis":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "redis": "ok"})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("not an integer")
	}
	return v, nil
}
