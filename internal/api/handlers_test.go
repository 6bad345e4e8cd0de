package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/lmevald/lmevald/internal/api"
	"github.com/lmevald/lmevald/internal/mocks"
	"github.com/lmevald/lmevald/internal/model"
	"github.com/lmevald/lmevald/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	launcher *mocks.MockLauncher
	ctrl     *gomock.Controller
	url      string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	launcher := mocks.NewMockLauncher(ctrl)
	registry := service.NewRegistry(launcher, regexp.MustCompile(model.DefaultProgressPattern))
	srv := api.New(registry, api.Config{
		Arguments: model.DefaultArguments(),
		ToolPath:  "lm_eval",
		Env:       []string{"PATH=/usr/bin"},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return fixture{
		launcher: launcher,
		ctrl:     ctrl,
		url:      ts.URL,
	}
}

// process returns a running process which reports the given stderr lines
// on the first drain.
func (f fixture) process(pid int, stderr ...string) *mocks.MockProcess {
	proc := mocks.NewMockProcess(f.ctrl)
	proc.EXPECT().PID().Return(pid).AnyTimes()
	proc.EXPECT().Started().Return(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)).AnyTimes()
	proc.EXPECT().Drain().Return(nil, stderr).MaxTimes(1)
	proc.EXPECT().Drain().Return(nil, nil).AnyTimes()
	return proc
}

func (f fixture) launch(t *testing.T, proc service.Process) {
	t.Helper()
	f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(proc, nil)
	code, body := do(t, http.MethodPost, f.url+"/job", `{"model": "hf"}`)
	require.Equal(t, http.StatusOK, code, string(body))
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	return resp.StatusCode, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestCreateJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	proc := f.process(4242)
	f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cmd service.Command) (service.Process, error) {
			require.Equal(t, "lm_eval --model hf --tasks hellaswag --num_fewshot 5 --log_samples", cmd.Line)
			require.Equal(t, []string{"PATH=/usr/bin", "HF_TOKEN=secret"}, cmd.Env)
			return proc, nil
		})

	code, body := do(t, http.MethodPost, f.url+"/job", `{
		"model": "hf",
		"tasks": "hellaswag",
		"num_fewshot": 5,
		"log_samples": true,
		"env_vars": {"HF_TOKEN": "secret"}
	}`)
	require.Equal(t, http.StatusOK, code, string(body))
	require.Equal(t, api.LaunchResponse{Status: "success", JobPID: 4242}, decode[api.LaunchResponse](t, body))
}

func TestCreateJob_Fail(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		code     int
		errCode  string
	}{
		{"invalid json", `{"model": `, http.StatusBadRequest, "invalid_json"},
		{"not an object", `["hf"]`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"modle": "hf"}`, http.StatusUnprocessableEntity, "invalid_request"},
		{"type mismatch", `{"num_fewshot": "five"}`, http.StatusUnprocessableEntity, "invalid_request"},
		{"store_true set to false", `{"log_samples": false}`, http.StatusUnprocessableEntity, "invalid_request"},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			code, body := do(t, http.MethodPost, f.url+"/job", tc.given)
			require.Equal(t, tc.code, code, string(body))
			require.Equal(t, tc.errCode, decode[api.ErrorResponse](t, body).Error)
		})
	}

	t.Run("spawn failure", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.launcher.EXPECT().Launch(gomock.Any(), gomock.Any()).Return(nil, service.ErrSpawn)
		code, body := do(t, http.MethodPost, f.url+"/job", `{"lm_eval_path": "/nonexistent"}`)
		require.Equal(t, http.StatusInternalServerError, code)
		require.Equal(t, "launch_failed", decode[api.ErrorResponse](t, body).Error)
	})
}

func TestGetJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	proc := f.process(7, "Requesting API: 42%")
	proc.EXPECT().Poll().Return(false, 0).AnyTimes()
	f.launch(t, proc)

	code, body := do(t, http.MethodGet, f.url+"/job/7", "")
	require.Equal(t, http.StatusOK, code, string(body))
	require.JSONEq(t, `{
		"job_id": 7,
		"argument": "lm_eval --model hf",
		"status": "Running",
		"timestamp": "2025-01-02T03:04:05Z",
		"exit_code": null,
		"inference_progress_pct": 42,
		"stdout": [],
		"stderr": ["Requesting API: 42%"]
	}`, string(body))

	var testCases = []struct {
		scenario string
		given    string
		errCode  string
	}{
		{"unknown", "/job/8", "not_found"},
		{"not a number", "/job/abc", "invalid_id"},
		{"negative", "/job/-1", "invalid_id"},
	}
	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			code, body := do(t, http.MethodGet, f.url+tc.given, "")
			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, tc.errCode, decode[api.ErrorResponse](t, body).Error)
		})
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, body := do(t, http.MethodGet, f.url+"/jobs", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"jobs": []}`, string(body))

	running := f.process(20)
	running.EXPECT().Poll().Return(false, 0).AnyTimes()
	finished := f.process(10)
	finished.EXPECT().Poll().Return(true, 1).AnyTimes()
	f.launch(t, running)
	f.launch(t, finished)

	code, body = do(t, http.MethodGet, f.url+"/jobs", "")
	require.Equal(t, http.StatusOK, code)
	list := decode[model.JobList](t, body)
	require.Len(t, list.Jobs, 2)
	require.Equal(t, 10, list.Jobs[0].JobID)
	require.Equal(t, model.JobStatusFailed, list.Jobs[0].Status)
	require.Equal(t, 1, *list.Jobs[0].ExitCode)
	require.Equal(t, 20, list.Jobs[1].JobID)

	code, body = do(t, http.MethodGet, f.url+"/jobs?include_finished=false", "")
	require.Equal(t, http.StatusOK, code)
	list = decode[model.JobList](t, body)
	require.Len(t, list.Jobs, 1)
	require.Equal(t, 20, list.Jobs[0].JobID)
	require.Nil(t, list.Jobs[0].ExitCode)

	code, body = do(t, http.MethodGet, f.url+"/jobs?include_finished=maybe", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_query", decode[api.ErrorResponse](t, body).Error)
}

func TestStopJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	proc := f.process(3)
	gomock.InOrder(
		proc.EXPECT().Terminate().Return(true, nil),
		proc.EXPECT().Terminate().Return(false, nil),
	)
	proc.EXPECT().Poll().Return(true, -15).AnyTimes()
	f.launch(t, proc)

	code, body := do(t, http.MethodGet, f.url+"/job/3/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, api.StatusResponse{Status: "success", Message: "Job 3 terminated successfully."},
		decode[api.StatusResponse](t, body))

	code, body = do(t, http.MethodGet, f.url+"/job/3/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Job 3 has already completed.", decode[api.StatusResponse](t, body).Message)

	code, body = do(t, http.MethodGet, f.url+"/job/3", "")
	require.Equal(t, http.StatusOK, code)
	detail := decode[model.JobDetail](t, body)
	require.Equal(t, model.JobStatusStopped, detail.Status)
	require.Equal(t, -15, *detail.ExitCode)

	code, _ = do(t, http.MethodGet, f.url+"/job/4/stop", "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestDeleteJob(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	proc := f.process(5)
	proc.EXPECT().Terminate().Return(true, nil)
	f.launch(t, proc)

	code, body := do(t, http.MethodDelete, f.url+"/job/5", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Job 5 deleted successfully.", decode[api.StatusResponse](t, body).Message)

	code, _ = do(t, http.MethodGet, f.url+"/job/5", "")
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodDelete, f.url+"/job/5", "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestSchemaAndHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	code, body := do(t, http.MethodGet, f.url+"/schema", "")
	require.Equal(t, http.StatusOK, code)
	args := decode[model.Arguments](t, body)
	require.Equal(t, len(model.DefaultArguments()), len(args))
	require.Equal(t, "model", args[0].Name)

	code, body = do(t, http.MethodGet, f.url+"/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status": "ok"}`, string(body))
}
