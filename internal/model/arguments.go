package model

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	_ "embed"
)

// ArgKind tells how an argument is rendered on the command line.
type ArgKind string

const (
	ArgString     ArgKind = "string"
	ArgInt        ArgKind = "int"
	ArgFloat      ArgKind = "float"
	ArgStoreTrue  ArgKind = "store_true"
	ArgStoreFalse ArgKind = "store_false"
)

// Names of the request fields which are never translated into flags.
const (
	FieldEnvVars    = "env_vars"
	FieldLMEvalPath = "lm_eval_path"
)

// IsFlag reports whether the argument is a bare flag without a value.
func (k ArgKind) IsFlag() bool {
	return k == ArgStoreTrue || k == ArgStoreFalse
}

func (k ArgKind) Valid() bool {
	switch k {
	case ArgString, ArgInt, ArgFloat, ArgStoreTrue, ArgStoreFalse:
		return true
	default:
		return false
	}
}

// ArgumentSpec declares one command line argument of the wrapped tool.
type ArgumentSpec struct {
	Name    string  `json:"name" yaml:"name"`
	Flag    string  `json:"flag" yaml:"flag"`
	Kind    ArgKind `json:"kind" yaml:"kind"`
	Default any     `json:"default,omitempty" yaml:"default,omitempty"`
	Help    string  `json:"help,omitempty" yaml:"help,omitempty"`
}

// Arguments is an ordered argument schema. The order is the order in which
// set arguments are emitted on the command line.
type Arguments []ArgumentSpec

//go:embed arguments.yaml
var defaultArgumentsSource []byte

var defaultArguments Arguments

func init() {
	args, err := ParseArguments(defaultArgumentsSource)
	if err != nil {
		panic(err)
	}
	defaultArguments = args
}

// DefaultArguments returns the built-in lm-evaluation-harness argument schema.
func DefaultArguments() Arguments {
	return append(Arguments(nil), defaultArguments...)
}

// ParseArguments decodes and validates a YAML list of argument specs.
func ParseArguments(b []byte) (Arguments, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var args Arguments
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	return args, nil
}

// Validate checks names are unique and not reserved, flags look like flags
// and kinds are known.
func (a Arguments) Validate() error {
	if len(a) == 0 {
		return fmt.Errorf("%w: no arguments", ErrArgumentSchema)
	}
	seen := make(map[string]struct{}, len(a))
	for _, arg := range a {
		switch {
		case arg.Name == "":
			return fmt.Errorf("%w: empty name (flag %q)", ErrArgumentSchema, arg.Flag)
		case arg.Name == FieldEnvVars || arg.Name == FieldLMEvalPath:
			return fmt.Errorf("%w: %s is reserved", ErrArgumentSchema, arg.Name)
		case !strings.HasPrefix(arg.Flag, "-"):
			return fmt.Errorf("%w: %s: flag %q must start with -", ErrArgumentSchema, arg.Name, arg.Flag)
		case !arg.Kind.Valid():
			return fmt.Errorf("%w: %s: unknown kind %q", ErrArgumentSchema, arg.Name, arg.Kind)
		}
		if _, ok := seen[arg.Name]; ok {
			return fmt.Errorf("%w: duplicate name %s", ErrArgumentSchema, arg.Name)
		}
		seen[arg.Name] = struct{}{}
	}
	return nil
}

// Lookup returns the spec of a named argument.
func (a Arguments) Lookup(name string) (ArgumentSpec, error) {
	for _, arg := range a {
		if arg.Name == name {
			return arg, nil
		}
	}
	return ArgumentSpec{}, fmt.Errorf("%w: %s", ErrUnknownArgument, name)
}
