package calc

// Expression grammar:
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = "-" unary | primary
//	primary = number | "(" expr ")"
//
// Numbers are decimal or scientific float literals. The parser builds a
// small tree so the canonical form can be re-rendered independently of the
// input's whitespace and redundant parentheses at the top level of literals.

import (
	"strconv"
	"strings"
)

type node interface {
	eval() (float64, error)
	render() string
}

type numNode struct {
	val float64
}

func (n numNode) eval() (float64, error) { return n.val, nil }
func (n numNode) render() string         { return formatOperand(n.val) }

type negNode struct {
	operand node
}

func (n negNode) eval() (float64, error) {
	v, err := n.operand.eval()
	if err != nil {
		return 0, err
	}
	return -v, nil
}

func (n negNode) render() string { return "(-" + n.operand.render() + ")" }

type binNode struct {
	op          byte
	left, right node
}

func (n binNode) eval() (float64, error) {
	l, err := n.left.eval()
	if err != nil {
		return 0, err
	}
	r, err := n.right.eval()
	if err != nil {
		return 0, err
	}
	switch n.op {
	case '+':
		return l + r, nil
	case '-':
		return l - r, nil
	case '*':
		return l * r, nil
	default:
		if r == 0 {
			return 0, newError(KindDivisionByZero, "division by zero in expression")
		}
		return l / r, nil
	}
}

func (n binNode) render() string {
	return "(" + n.left.render() + string(n.op) + n.right.render() + ")"
}

type exprParser struct {
	src string
	pos int
}

// parseExpr parses the whole input and fails with a parse error on any
// trailing garbage.
func parseExpr(src string) (node, error) {
	p := &exprParser{src: src}
	n, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, newError(KindParse, "unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	return n, nil
}

func (p *exprParser) parseSum() (node, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if op, ok := p.peek(); ok && (op == '+' || op == '-') {
			p.pos++
			right, err := p.parseProduct()
			if err != nil {
				return nil, err
			}
			left = binNode{op: op, left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parseProduct() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if op, ok := p.peek(); ok && (op == '*' || op == '/') {
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = binNode{op: op, left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *exprParser) parseUnary() (node, error) {
	p.skipSpace()
	if op, ok := p.peek(); ok && op == '-' {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return negNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (node, error) {
	p.skipSpace()
	c, ok := p.peek()
	if !ok {
		return nil, newError(KindParse, "unexpected end of expression")
	}

	if c == '(' {
		p.pos++
		n, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if c, ok := p.peek(); !ok || c != ')' {
			return nil, newError(KindParse, "missing closing parenthesis at offset %d", p.pos)
		}
		p.pos++
		return n, nil
	}

	return p.parseNumber()
}

func (p *exprParser) parseNumber() (node, error) {
	start := p.pos
	seenExp := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c >= '0' && c <= '9' || c == '.':
			p.pos++
		case c == 'e' || c == 'E':
			seenExp = true
			p.pos++
		case (c == '+' || c == '-') && seenExp && p.pos > start &&
			(p.src[p.pos-1] == 'e' || p.src[p.pos-1] == 'E'):
			// sign inside a scientific exponent
			p.pos++
		default:
			goto done
		}
	}
done:
	lit := p.src[start:p.pos]
	if lit == "" {
		return nil, newError(KindParse, "unexpected %q at offset %d", p.src[p.pos], p.pos)
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return nil, newError(KindParse, "bad number %q at offset %d", lit, start)
	}
	return numNode{val: v}, nil
}

func (p *exprParser) skipSpace() {
	p.pos += len(p.src[p.pos:]) - len(strings.TrimLeft(p.src[p.pos:], " \t\r\n"))
}

func (p *exprParser) peek() (byte, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}
