package formula

// =============================================================================
// PARSER - Recursive descent, lowest precedence first
// =============================================================================
//
//   ternary    := or ( "?" ternary ":" ternary )?
//   or         := and ( "||" and )*
//   and        := comparison ( "&&" comparison )*
//   comparison := additive ( ("=="|"!="|"<"|"<="|">"|">=") additive )*
//   additive   := term ( ("+"|"-") term )*
//   term       := unary ( ("*"|"/"|"%") unary )*
//   unary      := ("-"|"+"|"!") unary | power
//   power      := primary ( "^" unary )?
//   primary    := number | "true" | "false" | ident | ident "(" args ")" | "(" ternary ")"

type parser struct {
	toks     []token
	pos      int
	depth    int
	maxDepth int
	idents   map[string]struct{}
}

func parse(src string, maxDepth int) (node, map[string]struct{}, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, maxDepth: maxDepth, idents: map[string]struct{}{}}
	root, err := p.ternary()
	if err != nil {
		return nil, nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, nil, errorf(ErrSyntax, t.pos, "unexpected %q", t.text)
	}
	return root, p.idents, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			return op, true
		}
	}
	return "", false
}

func (p *parser) descend() error {
	p.depth++
	if p.depth > p.maxDepth {
		return errorf(ErrBudgetExceeded, p.peek().pos, "nesting deeper than %d", p.maxDepth)
	}
	return nil
}

func (p *parser) ascend() { p.depth-- }

func (p *parser) ternary() (node, error) {
	if err := p.descend(); err != nil {
		return nil, err
	}
	defer p.ascend()

	cond, err := p.or()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokColon {
		return nil, errorf(ErrSyntax, t.pos, "expected ':' in conditional")
	}
	otherwise, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return &condNode{cond: cond, then: then, otherwise: otherwise}, nil
}

func (p *parser) or() (node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("||"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: false, left: left, right: right}
	}
}

func (p *parser) and() (node, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.isOp("&&"); !ok {
			return left, nil
		}
		p.next()
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: true, left: left, right: right}
	}
}

func (p *parser) comparison() (node, error) {
	return p.binaryLevel(p.additive, "==", "!=", "<", "<=", ">", ">=")
}

func (p *parser) additive() (node, error) {
	return p.binaryLevel(p.term, "+", "-")
}

func (p *parser) term() (node, error) {
	return p.binaryLevel(p.unary, "*", "/", "%")
}

func (p *parser) binaryLevel(operand func() (node, error), ops ...string) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp(ops...)
		if !ok {
			return left, nil
		}
		pos := p.next().pos
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right, pos: pos}
	}
}

func (p *parser) unary() (node, error) {
	op, ok := p.isOp("-", "+", "!")
	if !ok {
		return p.power()
	}
	if err := p.descend(); err != nil {
		return nil, err
	}
	defer p.ascend()

	p.next()
	x, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &unaryNode{op: op, x: x}, nil
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp("!"); ok {
		return nil, errorf(ErrDisabledOperator, p.peek().pos, "factorial")
	}
	if _, ok := p.isOp("^"); !ok {
		return base, nil
	}
	pos := p.next().pos
	exp, err := p.unary()
	if err != nil {
		return nil, err
	}
	return &binaryNode{op: "^", left: base, right: exp, pos: pos}, nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &numberNode{v: t.num}, nil

	case tokIdent:
		switch t.text {
		case "true":
			return &numberNode{v: 1}, nil
		case "false":
			return &numberNode{v: 0}, nil
		}
		if p.peek().kind == tokLParen {
			return p.call(t)
		}
		p.idents[t.text] = struct{}{}
		return &identNode{name: t.text, pos: t.pos}, nil

	case tokLParen:
		inner, err := p.ternary()
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, errorf(ErrSyntax, c.pos, "expected ')'")
		}
		return inner, nil

	case tokEOF:
		return nil, errorf(ErrSyntax, t.pos, "unexpected end of formula")

	default:
		return nil, errorf(ErrSyntax, t.pos, "unexpected %q", t.text)
	}
}

func (p *parser) call(name token) (node, error) {
	fn, ok := functions[name.text]
	if !ok {
		return nil, errorf(ErrUnknownFunction, name.pos, "%s", name.text)
	}
	p.next() // (

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.ternary()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if c := p.next(); c.kind != tokRParen {
		return nil, errorf(ErrSyntax, c.pos, "expected ')' after arguments to %s", name.text)
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, errorf(ErrSyntax, name.pos, "%s: wrong number of arguments (%d)", name.text, len(args))
	}
	return &callNode{name: name.text, fn: fn, args: args, pos: name.pos}, nil
}
