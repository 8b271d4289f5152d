package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

type celFilter struct {
	expr string
	prog cel.Program
}

// CEL compiles a boolean CEL expression over the variables
//
//	stream    string        the full stream name
//	segments  list(string)  stream split on "/"
//
// e.g. `stream.startsWith("/lidar")` or `size(segments) == 1`. An empty
// expression includes everything. Evaluation errors exclude the stream.
func CEL(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Streams(), nil
	}
	env, err := cel.NewEnv(
		cel.Variable("stream", cel.StringType),
		cel.Variable("segments", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter: %q must evaluate to bool, got %v", expr, ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter: program %q: %w", expr, err)
	}
	return &celFilter{expr: expr, prog: prog}, nil
}

func (f *celFilter) Include(stream string) bool {
	out, _, err := f.prog.Eval(map[string]any{
		"stream":   stream,
		"segments": Segments(stream),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func (f *celFilter) Key() string { return "cel:" + f.expr }
