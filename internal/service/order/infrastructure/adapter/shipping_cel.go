package adapter

import (
	"fmt"
	"math"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// CELShipping 是用 CEL 表达式描述的运费策略 (domain.ShippingPolicy)。
// 表达式可以使用 subtotal (double) 和 units (int) 两个变量，结果必须是 double，
// 例如: subtotal >= 100.0 ? 0.0 : 4.99 + 0.5 * double(units)
type CELShipping struct {
	expr string
	prg  cel.Program
}

// NewCELShipping 编译表达式并检查结果类型
func NewCELShipping(expr string) (*CELShipping, error) {
	env, err := cel.NewEnv(
		cel.Variable("subtotal", cel.DoubleType),
		cel.Variable("units", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("compile shipping expression %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.DoubleType) {
		return nil, fmt.Errorf("shipping expression %q must evaluate to double, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build shipping program: %w", err)
	}
	return &CELShipping{expr: expr, prg: prg}, nil
}

func (s *CELShipping) Quote(subtotal decimal.Decimal, units int) (decimal.Decimal, error) {
	out, _, err := s.prg.Eval(map[string]interface{}{
		"subtotal": subtotal.InexactFloat64(),
		"units":    int64(units),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("evaluate shipping expression %q: %w", s.expr, err)
	}
	v, ok := out.Value().(float64)
	if !ok {
		return decimal.Zero, fmt.Errorf("shipping expression %q returned %T", s.expr, out.Value())
	}
	// CEL 的 double 除零不会报错，而是得到 Inf 或 NaN
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return decimal.Zero, fmt.Errorf("shipping expression %q is not finite for subtotal %s: %v", s.expr, subtotal, v)
	}
	return decimal.NewFromFloat(v), nil
}

func (s *CELShipping) String() string {
	return s.expr
}
