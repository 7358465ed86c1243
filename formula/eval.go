/*
Package formula evaluates user-authored quantity formulas.

PURPOSE:
  Template components carry their quantity as text, e.g.
  "length * width * depth * (groundwater ? 1.15 : 1)". This package
  compiles such text into a small AST and evaluates it against a scope of
  named numbers. It is a closed interpreter: nothing outside the operator
  and function tables below can run.

SUPPORTED:
  Arithmetic:   + - * / % ^        (^ is right-associative, -2^2 == -4)
  Comparison:   == != < <= > >=    (yield 1 or 0)
  Logical:      && || !  and/or/not (short-circuit, truthy = non-zero)
  Conditional:  c ? a : b
  Functions:    abs ceil floor round(x[,digits]) min max sqrt
  Literals:     numbers, true, false

DISABLED:
  Factorial (postfix !), string literals and concatenation, "in",
  assignment, member access. Each is a compile error.

BUDGETS:
  Limits bound source length, nesting depth and evaluation steps so a
  hostile formula cannot pin a CPU or blow the stack.

CONTRACT:
  Evaluate never panics and always returns a finite number, 0 whenever
  the error is non-nil. Callers record the error; they do not abort.
*/
package formula

import (
	"fmt"
	"math"
	"sort"
)

// Scope binds identifiers to numbers.
type Scope map[string]float64

// Limits bounds the cost of compiling and running one formula.
type Limits struct {
	MaxLength int // bytes of source
	MaxDepth  int // parser nesting
	MaxSteps  int // evaluated nodes per run
}

const (
	DefaultMaxLength = 4096
	DefaultMaxDepth  = 64
	DefaultMaxSteps  = 10000
)

func DefaultLimits() Limits {
	return Limits{MaxLength: DefaultMaxLength, MaxDepth: DefaultMaxDepth, MaxSteps: DefaultMaxSteps}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxLength <= 0 {
		l.MaxLength = d.MaxLength
	}
	if l.MaxDepth <= 0 {
		l.MaxDepth = d.MaxDepth
	}
	if l.MaxSteps <= 0 {
		l.MaxSteps = d.MaxSteps
	}
	return l
}

// =============================================================================
// EVALUATOR
// =============================================================================

// Evaluator compiles and runs formulas under fixed limits. It holds no
// mutable state and is safe for concurrent use.
type Evaluator struct {
	limits Limits
}

// New returns an evaluator; zero limit fields take the defaults.
func New(limits Limits) *Evaluator {
	return &Evaluator{limits: limits.withDefaults()}
}

var defaultEvaluator = New(Limits{})

// Evaluate runs src against scope with the default limits.
func Evaluate(src string, scope Scope) (float64, error) {
	return defaultEvaluator.Evaluate(src, scope)
}

func (e *Evaluator) Limits() Limits { return e.limits }

// Compile parses src without evaluating it.
func (e *Evaluator) Compile(src string) (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			prog, err = nil, &Error{Kind: ErrInternal, Msg: fmt.Sprint(r)}
		}
	}()

	if len(src) > e.limits.MaxLength {
		return nil, errorf(ErrBudgetExceeded, e.limits.MaxLength, "formula longer than %d bytes", e.limits.MaxLength)
	}
	if isBlank(src) {
		return nil, &Error{Kind: ErrEmpty}
	}
	root, idents, err := parse(src, e.limits.MaxDepth)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(idents))
	for n := range idents {
		names = append(names, n)
	}
	sort.Strings(names)
	return &Program{source: src, root: root, maxSteps: e.limits.MaxSteps, idents: names}, nil
}

// Evaluate compiles and runs src. The result is always finite and is 0
// whenever err is non-nil.
func (e *Evaluator) Evaluate(src string, scope Scope) (float64, error) {
	prog, err := e.Compile(src)
	if err != nil {
		return 0, err
	}
	return prog.Run(scope)
}

// =============================================================================
// PROGRAM - A compiled formula
// =============================================================================

type Program struct {
	source   string
	root     node
	maxSteps int
	idents   []string
}

func (p *Program) Source() string { return p.source }

// Identifiers lists the variables the formula reads, sorted.
func (p *Program) Identifiers() []string {
	out := make([]string, len(p.idents))
	copy(out, p.idents)
	return out
}

// Run evaluates the program. Same contract as Evaluator.Evaluate.
func (p *Program) Run(scope Scope) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, &Error{Kind: ErrInternal, Msg: fmt.Sprint(r)}
		}
	}()

	m := &machine{scope: scope, budget: p.maxSteps}
	v, err = p.root.eval(m)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &Error{Kind: ErrNonFinite}
	}
	return v, nil
}

type machine struct {
	scope  Scope
	budget int
}

func (m *machine) step(pos int) error {
	m.budget--
	if m.budget < 0 {
		return errorf(ErrBudgetExceeded, pos, "too many evaluation steps")
	}
	return nil
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
		default:
			return false
		}
	}
	return true
}
