// Package filter compiles CEL expressions into predicates over log entries.
//
// Expressions see these variables:
//
//	seq     int     sequence number
//	ts_ms   int     entry timestamp, unix milliseconds
//	size    int     payload length in bytes
//	text    string  payload as a string
//	json    dyn     payload parsed as JSON, null when it is not JSON
//	now_ms  int     evaluation time, unix milliseconds
//
// Example: `json.user == "ana" && ts_ms > now_ms - 3600000`.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/seglog/internal/logstore"
)

// Filter wraps a compiled CEL program. The zero Filter matches everything.
type Filter struct {
	prog     cel.Program
	enabled  bool
	usesJSON bool
	now      func() time.Time
}

// Compile parses and type-checks expr. An empty expression yields a disabled filter.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("seq", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// parsed JSON payload for field filtering
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter: parse: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("filter: check: %w", iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return Filter{}, fmt.Errorf("filter: expression must be boolean, got %s", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true, usesJSON: strings.Contains(expr, "json"), now: time.Now}, nil
}

// MustCompile is Compile that panics on error. For tests and constants.
func MustCompile(expr string) Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// Enabled reports whether the filter restricts anything.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the expression against e. Evaluation errors do not match.
func (f Filter) Match(e logstore.Entry) bool {
	if !f.enabled {
		return true
	}
	var doc any
	if f.usesJSON {
		_ = json.Unmarshal(e.Payload, &doc)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"seq":    int64(e.Seq),
		"ts_ms":  e.Timestamp.UnixMilli(),
		"size":   int64(len(e.Payload)),
		"text":   string(e.Payload),
		"json":   doc,
		"now_ms": f.now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Predicate adapts the filter for logstore.WithFilter. Nil when disabled.
func (f Filter) Predicate() logstore.Predicate {
	if !f.enabled {
		return nil
	}
	return f.Match
}
