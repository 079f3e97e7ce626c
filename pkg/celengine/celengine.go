package celengine

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"
)

// Program is a compiled expression bound to the variable set it was
// declared with. It is safe for concurrent use.
type Program struct {
	expr string
	vars []string
	prg  cel.Program
}

// Compile declares one variable per key of sample, typed after its value,
// and compiles expr against them.
func Compile(expr string, sample map[string]any) (*Program, error) {
	env, err := cel.NewEnv(declare(sample)...)
	if err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	vars := make([]string, 0, len(sample))
	for k := range sample {
		vars = append(vars, k)
	}
	sort.Strings(vars)

	return &Program{expr: expr, vars: vars, prg: prg}, nil
}

func declare(sample map[string]any) []cel.EnvOption {
	opts := make([]cel.EnvOption, 0, len(sample))
	for key, val := range sample {
		opts = append(opts, cel.Variable(key, typeOf(key, val)))
	}
	return opts
}

func typeOf(key string, val any) *cel.Type {
	switch v := val.(type) {
	case string:
		return cel.StringType
	case int, int32, int64:
		return cel.IntType
	case uint, uint32, uint64:
		return cel.UintType
	case float32, float64:
		return cel.DoubleType
	case bool:
		return cel.BoolType
	case map[string]any:
		return cel.MapType(cel.StringType, cel.DynType)
	case []any:
		return cel.ListType(cel.DynType)
	default:
		zap.L().Debug("cel variable declared dynamic", zap.String("key", key), zap.String("type", fmt.Sprintf("%T", v)))
		return cel.DynType
	}
}

func (p *Program) String() string { return p.expr }

// Vars lists the declared variable names in order.
func (p *Program) Vars() []string { return p.vars }

func (p *Program) eval(attrs map[string]any) (any, error) {
	out, _, err := p.prg.Eval(attrs)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", p.expr, err)
	}
	return out.Value(), nil
}

// Int evaluates to an integer. Double results are truncated toward zero.
func (p *Program) Int(attrs map[string]any) (int64, error) {
	val, err := p.eval(attrs)
	if err != nil {
		return 0, err
	}
	switch n := val.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("expression %q yielded %T, want a number", p.expr, val)
}

func (p *Program) Bool(attrs map[string]any) (bool, error) {
	val, err := p.eval(attrs)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q yielded %T, want bool", p.expr, val)
	}
	return b, nil
}
