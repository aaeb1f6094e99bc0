package env

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnresolved is returned by Expand for a reference with no value and no default.
var ErrUnresolved = errors.New("env: unresolved reference")

// Line is one KEY=value entry of an env file.
type Line struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// Lookup resolves a reference name. Names prefixed with "env:" are read
// from the process environment; others come from vars.
func Lookup(vars map[string]string) func(name string) (string, bool) {
	return func(name string) (string, bool) {
		if key, ok := strings.CutPrefix(name, "env:"); ok {
			return os.LookupEnv(key)
		}
		val, ok := vars[name]
		return val, ok
	}
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseFile reads an env file. A missing file yields no lines.
func ParseFile(filename string) ([]Line, error) {
	buf, err := os.ReadFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "env: reading %s", filename)
	}
	return Parse(buf)
}

// Parse reads KEY=value lines, skipping blanks and # comments. Values may
// reference earlier keys or the process environment with ${NAME:-default}.
func Parse(buf []byte) ([]Line, error) {
	var lines []Line
	vars := make(map[string]string)
	lookup := Lookup(vars)
	for n, raw := range strings.Split(string(buf), "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimPrefix(raw, "export ")
		key, val, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Newf("env: line %d: expected KEY=value", n+1)
		}
		expanded, err := Expand(dequote(strings.TrimSpace(val)), lookup)
		if err != nil {
			return nil, errors.Wrapf(err, "env: line %d", n+1)
		}
		vars[key] = expanded
		lines = append(lines, Line{Key: key, Val: expanded})
	}
	return lines, nil
}

// Apply sets every line in the process environment unless already set.
func Apply(lines []Line) error {
	for _, line := range lines {
		if _, ok := os.LookupEnv(line.Key); ok {
			continue
		}
		if err := os.Setenv(line.Key, line.Val); err != nil {
			return errors.Wrapf(err, "env: setting %s", line.Key)
		}
	}
	return nil
}

// Expand replaces each ${NAME} or ${NAME:-default} in input. An empty value
// falls back to the default; a reference with neither is ErrUnresolved.
// Text which is not a complete reference is kept as-is.
func Expand(input string, lookup func(name string) (string, bool)) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}
	var out strings.Builder
	rest := input
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end += start
		out.WriteString(rest[:start])

		name, def, hasDefault := strings.Cut(rest[start+2:end], ":-")
		if name == "" {
			out.WriteString(rest[start : end+1])
		} else if val, _ := lookup(name); val != "" {
			out.WriteString(val)
		} else if hasDefault {
			out.WriteString(def)
		} else {
			return "", errors.Wrapf(ErrUnresolved, "%s", name)
		}
		rest = rest[end+1:]
	}
}
