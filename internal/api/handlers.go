package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lmevald/lmevald/internal/cmdline"
	"github.com/lmevald/lmevald/internal/log"
	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/service"
)

// LaunchResponse is the body of a successful POST /job.
type LaunchResponse struct {
	Status string `json:"status"`
	JobPID int    `json:"job_pid"`
}

// StatusResponse is the body of successful stop and delete requests.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const statusSuccess = "success"

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := cmdline.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes), s.cfg.Arguments, s.cfg.ToolPath)
	switch {
	case errors.Is(err, cmdline.ErrInvalidJSON):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return
	case err != nil:
		WriteError(w, ErrorParams{Code: http.StatusUnprocessableEntity, ErrCode: "invalid_request", Err: err})
		return
	}

	line := cmdline.Translate(req, s.cfg.Arguments)
	slog.DebugContext(ctx, "running command", "argument", line)
	slog.DebugContext(ctx, "environment variables", "env_vars", service.EnvKeys(req.EnvVars))

	id, err := s.jobs.Launch(ctx, service.Command{
		Line: line,
		Env:  service.Environ(s.cfg.Env, req.EnvVars),
	})
	if err != nil {
		slog.ErrorContext(ctx, "launching job failed", "argument", line, "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "launch_failed", Err: err})
		return
	}

	WriteJSON(w, http.StatusOK, LaunchResponse{Status: statusSuccess, JobPID: id})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	includeFinished := true
	if v := r.URL.Query().Get("include_finished"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, ErrorParams{
				Code:    http.StatusBadRequest,
				ErrCode: "invalid_query",
				Err:     fmt.Errorf("include_finished: expected a boolean, got %q", v),
			})
			return
		}
		includeFinished = b
	}

	jobs, err := s.jobs.List(r.Context(), includeFinished)
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "list_failed", Err: err})
		return
	}
	WriteJSON(w, http.StatusOK, jobList(jobs))
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	detail, err := s.jobs.Get(id)
	if err != nil {
		writeJobError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, detail)
}

func (s *Server) stopJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	ctx := log.ContextAttrs(r.Context(), slog.Int("job_id", id))
	terminated, err := s.jobs.Stop(ctx, id)
	if err != nil {
		writeJobError(w, id, err)
		return
	}
	msg := fmt.Sprintf("Job %d terminated successfully.", id)
	if !terminated {
		msg = fmt.Sprintf("Job %d has already completed.", id)
	}
	WriteJSON(w, http.StatusOK, StatusResponse{Status: statusSuccess, Message: msg})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}
	ctx := log.ContextAttrs(r.Context(), slog.Int("job_id", id))
	if err := s.jobs.Delete(ctx, id); err != nil {
		writeJobError(w, id, err)
		return
	}
	WriteJSON(w, http.StatusOK, StatusResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("Job %d deleted successfully.", id),
	})
}

func (s *Server) schema(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.cfg.Arguments)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func jobList(jobs []model.JobSummary) model.JobList {
	if jobs == nil {
		jobs = []model.JobSummary{}
	}
	return model.JobList{Jobs: jobs}
}

func jobID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_id",
			Err:     fmt.Errorf("invalid job id %q", raw),
		})
		return 0, false
	}
	return id, true
}

func writeJobError(w http.ResponseWriter, id int, err error) {
	if errors.Is(err, service.ErrNotFound) {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "not_found",
			Err:     fmt.Errorf("no job with id %d found", id),
		})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "internal", Err: err})
}
