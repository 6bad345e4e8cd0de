// Package cmdline translates JSON job requests into command lines of the
// wrapped evaluation tool.
package cmdline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/lmevald/lmevald/internal/model"
)

var (
	ErrUnknownField = errors.New("unknown field")
	ErrInvalidValue = errors.New("invalid value")
	ErrInvalidJSON  = errors.New("invalid json")
)

// Value is an explicitly set request field. Literal holds the textual form
// used on the command line: the string itself for strings, the JSON number
// literal for numbers, "true"/"false" for booleans.
type Value struct {
	Literal string
	Quote   bool
}

// Request is a decoded job request. Set contains only the fields present in
// the request body so defaults never leak into the command line.
type Request struct {
	Set        map[string]Value
	EnvVars    map[string]string
	LMEvalPath string
}

// IsSet reports whether the caller explicitly provided the field.
func (r Request) IsSet(name string) bool {
	_, ok := r.Set[name]
	return ok
}

// DecodeRequest reads a JSON object and validates every field against the
// argument schema. JSON null is treated as not set.
func DecodeRequest(r io.Reader, args model.Arguments, defaultPath string) (Request, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if raw == nil {
		return Request{}, fmt.Errorf("%w: expected an object", ErrInvalidJSON)
	}

	req := Request{
		Set:        make(map[string]Value, len(raw)),
		EnvVars:    map[string]string{},
		LMEvalPath: defaultPath,
	}

	for name, msg := range raw {
		if isNull(msg) {
			continue
		}
		switch name {
		case model.FieldEnvVars:
			if err := json.Unmarshal(msg, &req.EnvVars); err != nil {
				return Request{}, fmt.Errorf("%w: %s: expected an object of strings", ErrInvalidValue, name)
			}
			continue
		case model.FieldLMEvalPath:
			if err := json.Unmarshal(msg, &req.LMEvalPath); err != nil || req.LMEvalPath == "" {
				return Request{}, fmt.Errorf("%w: %s: expected a non-empty string", ErrInvalidValue, name)
			}
			continue
		}

		spec, err := args.Lookup(name)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		v, err := decodeValue(spec, msg)
		if err != nil {
			return Request{}, err
		}
		req.Set[name] = v
	}
	return req, nil
}

func decodeValue(spec model.ArgumentSpec, msg json.RawMessage) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Value{}, fmt.Errorf("%w: %s: %w", ErrInvalidValue, spec.Name, err)
	}

	switch spec.Kind {
	case model.ArgString:
		s, ok := v.(string)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s: expected a string", ErrInvalidValue, spec.Name)
		}
		return Value{Literal: s, Quote: true}, nil
	case model.ArgInt:
		n, ok := v.(json.Number)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s: expected an integer", ErrInvalidValue, spec.Name)
		}
		if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
			return Value{}, fmt.Errorf("%w: %s: expected an integer, got %s", ErrInvalidValue, spec.Name, n)
		}
		return Value{Literal: n.String()}, nil
	case model.ArgFloat:
		n, ok := v.(json.Number)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s: expected a number", ErrInvalidValue, spec.Name)
		}
		return Value{Literal: n.String()}, nil
	case model.ArgStoreTrue, model.ArgStoreFalse:
		b, ok := v.(bool)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s: expected a boolean", ErrInvalidValue, spec.Name)
		}
		// the flag can only express one value
		if b != (spec.Kind == model.ArgStoreTrue) {
			return Value{}, fmt.Errorf("%w: %s: flag can only be set to %t", ErrInvalidValue, spec.Name, !b)
		}
		return Value{Literal: strconv.FormatBool(b)}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s: unsupported kind %q", ErrInvalidValue, spec.Name, spec.Kind)
	}
}

func isNull(msg json.RawMessage) bool {
	return string(bytes.TrimSpace(msg)) == "null"
}
