package formula

import (
	"math"
)

type node interface {
	eval(m *machine) (float64, error)
}

type numberNode struct{ v float64 }

func (n *numberNode) eval(m *machine) (float64, error) {
	if err := m.step(0); err != nil {
		return 0, err
	}
	return n.v, nil
}

type identNode struct {
	name string
	pos  int
}

func (n *identNode) eval(m *machine) (float64, error) {
	if err := m.step(n.pos); err != nil {
		return 0, err
	}
	v, ok := m.scope[n.name]
	if !ok {
		return 0, errorf(ErrUnknownIdentifier, n.pos, "%s", n.name)
	}
	return v, nil
}

type unaryNode struct {
	op string
	x  node
}

func (n *unaryNode) eval(m *machine) (float64, error) {
	if err := m.step(0); err != nil {
		return 0, err
	}
	x, err := n.x.eval(m)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "-":
		return -x, nil
	case "!":
		return boolNum(x == 0), nil
	default:
		return x, nil
	}
}

type binaryNode struct {
	op          string
	left, right node
	pos         int
}

func (n *binaryNode) eval(m *machine) (float64, error) {
	if err := m.step(n.pos); err != nil {
		return 0, err
	}
	a, err := n.left.eval(m)
	if err != nil {
		return 0, err
	}
	b, err := n.right.eval(m)
	if err != nil {
		return 0, err
	}

	var r float64
	switch n.op {
	case "+":
		r = a + b
	case "-":
		r = a - b
	case "*":
		r = a * b
	case "/":
		if b == 0 {
			return 0, errorf(ErrDivisionByZero, n.pos, "")
		}
		r = a / b
	case "%":
		if b == 0 {
			return 0, errorf(ErrDivisionByZero, n.pos, "")
		}
		r = math.Mod(a, b)
	case "^":
		r = math.Pow(a, b)
	case "==":
		return boolNum(a == b), nil
	case "!=":
		return boolNum(a != b), nil
	case "<":
		return boolNum(a < b), nil
	case "<=":
		return boolNum(a <= b), nil
	case ">":
		return boolNum(a > b), nil
	case ">=":
		return boolNum(a >= b), nil
	default:
		return 0, errorf(ErrSyntax, n.pos, "operator %q", n.op)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, errorf(ErrNonFinite, n.pos, "%g %s %g", a, n.op, b)
	}
	return r, nil
}

type logicalNode struct {
	and         bool
	left, right node
}

func (n *logicalNode) eval(m *machine) (float64, error) {
	if err := m.step(0); err != nil {
		return 0, err
	}
	a, err := n.left.eval(m)
	if err != nil {
		return 0, err
	}
	if n.and && a == 0 {
		return 0, nil
	}
	if !n.and && a != 0 {
		return 1, nil
	}
	b, err := n.right.eval(m)
	if err != nil {
		return 0, err
	}
	return boolNum(b != 0), nil
}

type condNode struct {
	cond, then, otherwise node
}

func (n *condNode) eval(m *machine) (float64, error) {
	if err := m.step(0); err != nil {
		return 0, err
	}
	c, err := n.cond.eval(m)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return n.then.eval(m)
	}
	return n.otherwise.eval(m)
}

type callNode struct {
	name string
	fn   *function
	args []node
	pos  int
}

func (n *callNode) eval(m *machine) (float64, error) {
	if err := m.step(n.pos); err != nil {
		return 0, err
	}
	vals := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(m)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	r, err := n.fn.call(vals)
	if err != nil {
		return 0, errorf(ErrSyntax, n.pos, "%s: %v", n.name, err)
	}
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, errorf(ErrNonFinite, n.pos, "%s", n.name)
	}
	return r, nil
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
