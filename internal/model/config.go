package model

import (
	"fmt"
	"io"
	"regexp"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	DefaultListen          = ":8080"
	DefaultToolPath        = "python -m lm_eval"
	DefaultProgressPattern = `^Requesting API:\s*(\d+)%`
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx     *cue.Context
	schema     cue.Value
	kindSchema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}

	kindSchema = compiled.LookupPath(cue.ParsePath("#Kind"))
	if kindSchema.Err() != nil {
		panic(kindSchema.Err())
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Service Service `json:"service" yaml:"service"`
	Tool    Tool    `json:"tool" yaml:"tool"`
}

type Service struct {
	Listen          string   `json:"listen" yaml:"listen"`
	Verbose         *bool    `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	EnvFile         *string  `json:"env_file,omitempty" yaml:"env_file,omitempty"`                   // .env file merged into every job environment
	TerminateOnExit *bool    `json:"terminate_on_exit,omitempty" yaml:"terminate_on_exit,omitempty"` // kill running jobs on shutdown
	Monitor         *Monitor `json:"monitor,omitempty" yaml:"monitor,omitempty"`
}

// Monitor schedules periodic logging of active jobs. Exactly one of the
// fields is set.
type Monitor struct {
	Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"` // ISO 8601, e.g. PT30S
}

// Tool describes the wrapped evaluation program.
type Tool struct {
	Path            string    `json:"path" yaml:"path"`
	ProgressPattern *string   `json:"progress_pattern,omitempty" yaml:"progress_pattern,omitempty"`
	Arguments       Arguments `json:"arguments,omitempty" yaml:"arguments,omitempty"` // empty => built-in schema
}

// DefaultConfig is the configuration stored on the first run.
func DefaultConfig() Config {
	return Config{
		Version: 0,
		Service: Service{
			Listen: DefaultListen,
		},
		Tool: Tool{
			Path: DefaultToolPath,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("lmevald.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	if len(out.Tool.Arguments) > 0 {
		if err := out.Tool.Arguments.Validate(); err != nil {
			return Config{}, err
		}
	}
	if _, err := out.Tool.Progress(); err != nil {
		return Config{}, err
	}
	if out.Service.Monitor != nil {
		if err := out.Service.Monitor.Validate(); err != nil {
			return Config{}, err
		}
	}

	return out, nil
}

// Args returns the configured argument schema or the built-in one.
func (t Tool) Args() Arguments {
	if len(t.Arguments) == 0 {
		return DefaultArguments()
	}
	return t.Arguments
}

// Progress compiles the progress marker pattern. The pattern must have
// exactly one capture group holding the percentage.
func (t Tool) Progress() (*regexp.Regexp, error) {
	pattern := DefaultProgressPattern
	if t.ProgressPattern != nil {
		pattern = *t.ProgressPattern
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("parsing tool.progress_pattern: %w", err)
	}
	if rx.NumSubexp() != 1 {
		return nil, fmt.Errorf("tool.progress_pattern %q: expected one capture group, got %d", pattern, rx.NumSubexp())
	}
	return rx, nil
}

// Get dereferences an optional config value.
func Get[T any](pt *T) T {
	var zero T
	if pt == nil {
		return zero
	}
	return *pt
}
