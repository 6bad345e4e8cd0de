package cmdline_test

import (
	"strings"
	"testing"

	"github.com/lmevald/lmevald/internal/cmdline"
	"github.com/lmevald/lmevald/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	t.Parallel()
	body := `{
		"model": "hf",
		"limit": 10,
		"log_samples": true,
		"device": null,
		"env_vars": {"HF_TOKEN": "secret"}
	}`
	req, err := cmdline.DecodeRequest(strings.NewReader(body), model.DefaultArguments(), "lm_eval")
	require.NoError(t, err)
	require.Equal(t, "lm_eval", req.LMEvalPath)
	require.Equal(t, map[string]string{"HF_TOKEN": "secret"}, req.EnvVars)

	require.True(t, req.IsSet("model"))
	require.True(t, req.IsSet("limit"))
	require.True(t, req.IsSet("log_samples"))
	require.False(t, req.IsSet("device"))
	require.False(t, req.IsSet("tasks"))
	require.False(t, req.IsSet("env_vars"))

	require.Equal(t, cmdline.Value{Literal: "hf", Quote: true}, req.Set["model"])
	require.Equal(t, cmdline.Value{Literal: "10"}, req.Set["limit"])
}

func TestDecodeRequest_Fail(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		then     error
	}{
		{"not json", `model=hf`, cmdline.ErrInvalidJSON},
		{"not an object", `["hf"]`, cmdline.ErrInvalidJSON},
		{"null body", `null`, cmdline.ErrInvalidJSON},
		{"unknown field", `{"modle": "hf"}`, cmdline.ErrUnknownField},
		{"string as int", `{"num_fewshot": "5"}`, cmdline.ErrInvalidValue},
		{"float as int", `{"num_fewshot": 1.5}`, cmdline.ErrInvalidValue},
		{"number as string", `{"model": 1}`, cmdline.ErrInvalidValue},
		{"string as float", `{"limit": "10"}`, cmdline.ErrInvalidValue},
		{"store_true set false", `{"log_samples": false}`, cmdline.ErrInvalidValue},
		{"flag not bool", `{"log_samples": "yes"}`, cmdline.ErrInvalidValue},
		{"env vars not strings", `{"env_vars": {"A": 1}}`, cmdline.ErrInvalidValue},
		{"empty tool path", `{"lm_eval_path": ""}`, cmdline.ErrInvalidValue},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := cmdline.DecodeRequest(strings.NewReader(tc.given), model.DefaultArguments(), "lm_eval")
			require.Error(t, err)
			require.ErrorIs(t, err, tc.then)
		})
	}
}
