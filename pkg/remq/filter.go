package remq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/kainosnoema/remq/pkg/message"
)

// filter is a compiled CEL predicate. A nil filter accepts everything.
type filter struct {
	prog cel.Program
}

func compileFilter(expr string) (*filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("channel", cel.StringType),
		cel.Variable("id", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON body, null when the body is not JSON.
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, iss.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}
	return &filter{prog: prog}, nil
}

// match reports whether m passes. Evaluation errors reject the message.
func (f *filter) match(m message.Message) bool {
	if f == nil {
		return true
	}
	var doc any
	_ = json.Unmarshal(m.Body, &doc)
	out, _, err := f.prog.Eval(map[string]any{
		"channel": m.Channel,
		"id":      int64(m.ID),
		"size":    int64(len(m.Body)),
		"text":    string(m.Body),
		"json":    doc,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
