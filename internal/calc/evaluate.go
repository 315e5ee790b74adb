// Package calc is the pure evaluation layer: it maps a calculation request
// to a deterministic float64 result or a typed failure. It does no I/O,
// holds no state, and is safe for unsynchronized concurrent use — the cache
// invariant (one fingerprint, one result, forever) depends on that.
package calc

import (
	"math"
	"strings"
)

// Evaluate computes the result of req.
//
// Arity rules: add, subtract and multiply take two or more operands and fold
// left to right; divide and intdiv take exactly two. Division is IEEE-754
// double division; intdiv floor-divides two integral operands.
func Evaluate(req Request) (float64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	if strings.TrimSpace(req.Expr) != "" {
		node, err := parseExpr(req.Expr)
		if err != nil {
			return 0, err
		}
		result, err := node.eval()
		if err != nil {
			return 0, err
		}
		return finite(result)
	}

	switch req.Op {
	case OpDivide, OpIntDiv:
		if len(req.Operands) != 2 {
			return 0, newError(KindArity, "%s requires exactly 2 operands, got %d", req.Op, len(req.Operands))
		}
	default:
		if len(req.Operands) < 2 {
			return 0, newError(KindArity, "%s requires at least 2 operands, got %d", req.Op, len(req.Operands))
		}
	}

	switch req.Op {
	case OpAdd:
		return finite(fold(req.Operands, func(a, b float64) float64 { return a + b }))
	case OpSubtract:
		return finite(fold(req.Operands, func(a, b float64) float64 { return a - b }))
	case OpMultiply:
		return finite(fold(req.Operands, func(a, b float64) float64 { return a * b }))
	case OpDivide:
		if req.Operands[1] == 0 {
			return 0, newError(KindDivisionByZero, "division by zero")
		}
		return finite(req.Operands[0] / req.Operands[1])
	default: // OpIntDiv
		a, b := req.Operands[0], req.Operands[1]
		if a != math.Trunc(a) || b != math.Trunc(b) {
			return 0, newError(KindInvalidOperand, "intdiv requires integral operands")
		}
		if b == 0 {
			return 0, newError(KindDivisionByZero, "integer division by zero")
		}
		return finite(math.Floor(a / b))
	}
}

// finite rejects results outside the double range. Encoders refuse ±Inf and
// NaN, so letting them through would break both the response body and the
// cache entry; failing the evaluation keeps the result representable
// end to end.
func finite(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(KindNonFinite, "result is not a finite number")
	}
	return v, nil
}

func fold(operands []float64, f func(a, b float64) float64) float64 {
	acc := operands[0]
	for _, v := range operands[1:] {
		acc = f(acc, v)
	}
	return acc
}
