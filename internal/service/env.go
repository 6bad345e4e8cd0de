package service

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFile reads KEY=VALUE pairs from a .env file.
func LoadEnvFile(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading env file %s: %w", path, err)
	}
	return env, nil
}

// Environ merges overrides into base (typically os.Environ()). Later maps
// win; keys are matched case sensitively. Overridden variables keep their
// position in base, new ones are appended sorted by key.
func Environ(base []string, overrides ...map[string]string) []string {
	merged := make(map[string]string)
	for _, o := range overrides {
		maps.Copy(merged, o)
	}

	env := make([]string, 0, len(base)+len(merged))
	seen := make(map[string]struct{}, len(merged))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if v, ok := merged[k]; ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			env = append(env, k+"="+v)
			continue
		}
		env = append(env, kv)
	}
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		if _, ok := seen[k]; ok {
			continue
		}
		env = append(env, k+"="+merged[k])
	}
	return env
}

// EnvKeys lists the variable names of env, for logging without values.
func EnvKeys(env map[string]string) []string {
	return slices.Sorted(maps.Keys(env))
}
