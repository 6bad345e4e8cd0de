package model_test

import (
	"strings"
	"testing"

	"github.com/lmevald/lmevald/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
service:
  listen: 127.0.0.1:9000
  verbose: true
  env_file: .env
  monitor:
    duration: PT30S
tool:
  path: /opt/venv/bin/lm_eval
  progress_pattern: '^Progress:\s*(\d+)%'
  arguments:
    - name: model
      flag: --model
      kind: string
      default: hf
    - name: log_samples
      flag: --log_samples
      kind: store_true
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Service.Listen)
	require.True(t, model.Get(cfg.Service.Verbose))
	require.Equal(t, ".env", model.Get(cfg.Service.EnvFile))
	require.False(t, model.Get(cfg.Service.TerminateOnExit))
	require.NotNil(t, cfg.Service.Monitor)
	require.Equal(t, "PT30S", cfg.Service.Monitor.Duration)
	require.Equal(t, "/opt/venv/bin/lm_eval", cfg.Tool.Path)

	args := cfg.Tool.Args()
	require.Len(t, args, 2)
	require.Equal(t, model.ArgStoreTrue, args[1].Kind)

	rx, err := cfg.Tool.Progress()
	require.NoError(t, err)
	require.Equal(t, []string{"Progress: 12%", "12"}, rx.FindStringSubmatch("Progress: 12%|##"))
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
tool:
  path: lm_eval
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, 0, cfg.Version)
	require.Equal(t, model.DefaultListen, cfg.Service.Listen)
	require.Nil(t, cfg.Service.Monitor)
	require.Equal(t, model.DefaultArguments(), cfg.Tool.Args())

	rx, err := cfg.Tool.Progress()
	require.NoError(t, err)
	require.Equal(t, model.DefaultProgressPattern, rx.String())
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		then     string
	}{
		{
			scenario: "missing tool path",
			given: `
service:
  listen: ":8080"
`,
			then: "tool.path",
		},
		{
			scenario: "unknown field",
			given: `
tool:
  path: lm_eval
  shell: bash
`,
			then: "shell",
		},
		{
			scenario: "invalid kind",
			given: `
tool:
  path: lm_eval
  arguments:
    - name: model
      flag: --model
      kind: text
`,
			then: "kind",
		},
		{
			scenario: "pattern without group",
			given: `
tool:
  path: lm_eval
  progress_pattern: '^Requesting API: \d+%'
`,
			then: "expected one capture group",
		},
		{
			scenario: "bad cron",
			given: `
service:
  monitor:
    cron: "* * 32 * *"
tool:
  path: lm_eval
`,
			then: "service.monitor.cron",
		},
		{
			scenario: "reserved argument",
			given: `
tool:
  path: lm_eval
  arguments:
    - name: env_vars
      flag: --env
      kind: string
`,
			then: "env_vars is reserved",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tc.given))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.then)
		})
	}
}

func TestCueErrDetails(t *testing.T) {
	yml := `
tool:
  path: lm_eval
  shell: bash
`
	_, err := model.LoadConfig(strings.NewReader(yml))
	require.Error(t, err)

	details := model.CueErrDetails(err)
	require.NotEmpty(t, details)
	require.Equal(t, "tool.shell", details[0].Path)
	require.Equal(t, "unknown_field", details[0].Code)
	require.Equal(t, "Field shell is not allowed", details[0].Message)
	require.Equal(t, "lmevald.yaml", details[0].Pos.Filename)
}
