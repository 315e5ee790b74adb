package calc

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Op enumerates the supported operators.
type Op string

const (
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
	OpMultiply Op = "multiply"
	OpDivide   Op = "divide"
	OpIntDiv   Op = "intdiv"
)

// Request is a calculation request: either an operator with an ordered
// operand list, or a free-form expression. Immutable once decoded.
type Request struct {
	Op       Op        `json:"op,omitempty"`
	Operands []float64 `json:"operands,omitempty"`
	Expr     string    `json:"expr,omitempty"`
}

// Validate checks structural validity: exactly one of op/expr is set, the
// operator is known, and every operand is finite and non-NaN.
func (r Request) Validate() error {
	hasOp := r.Op != ""
	hasExpr := strings.TrimSpace(r.Expr) != ""

	switch {
	case hasOp && hasExpr:
		return newError(KindParse, "op and expr are mutually exclusive")
	case !hasOp && !hasExpr:
		return newError(KindParse, "either op or expr is required")
	}

	if hasExpr {
		return nil
	}

	switch r.Op {
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpIntDiv:
	default:
		return newError(KindParse, "unknown operator %q", r.Op)
	}

	for i, v := range r.Operands {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return newError(KindInvalidOperand, "operand %d is not finite", i)
		}
	}
	return nil
}

// Canonical renders the request into its canonical form, the input of the
// cache fingerprint. Semantically identical requests render identically:
// operands of commutative operators are sorted, expressions are re-rendered
// from the parsed tree. Returns a typed error for requests that cannot be
// evaluated at all (so malformed text never reaches the fingerprint hasher).
func (r Request) Canonical() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	if strings.TrimSpace(r.Expr) != "" {
		node, err := parseExpr(r.Expr)
		if err != nil {
			return "", err
		}
		return "expr:" + node.render(), nil
	}

	operands := r.Operands
	if r.Op == OpAdd || r.Op == OpMultiply {
		operands = append([]float64(nil), operands...)
		sort.Float64s(operands)
	}

	var b strings.Builder
	b.WriteString("op:")
	b.WriteString(string(r.Op))
	b.WriteString("|operands:")
	for i, v := range operands {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatOperand(v))
	}
	return b.String(), nil
}

func formatOperand(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
