package ast

import (
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a JSON-encoded program produced by a front end. Every node is
// an object carrying a "kind" tag plus "line" and "col"; children appear in
// evaluation order. The source name applies to all positions in the unit.
func Decode(r io.Reader, source string) (*Program, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	d := &decoder{source: source}
	return d.program(raw)
}

type decoder struct {
	source string
}

func (d *decoder) program(raw map[string]any) (*Program, error) {
	if kind, _ := raw["kind"].(string); kind != "program" {
		return nil, fmt.Errorf("expected program node, got %q", raw["kind"])
	}
	stmts, err := d.statements(raw, "body")
	if err != nil {
		return nil, err
	}
	return &Program{Statements: stmts, Source: d.source}, nil
}

func (d *decoder) pos(raw map[string]any) Pos {
	p := Pos{Source: d.source}
	if n, ok := raw["line"].(json.Number); ok {
		v, _ := n.Int64()
		p.Line = int(v)
	}
	if n, ok := raw["col"].(json.Number); ok {
		v, _ := n.Int64()
		p.Col = int(v)
	}
	return p
}

func (d *decoder) statements(raw map[string]any, field string) ([]Statement, error) {
	list, ok := raw[field].([]any)
	if !ok {
		return nil, fmt.Errorf("%s: missing %q list", d.pos(raw), field)
	}
	out := make([]Statement, 0, len(list))
	for _, item := range list {
		node, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q entries must be objects", d.pos(raw), field)
		}
		s, err := d.statement(node)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *decoder) block(raw map[string]any, field string) (*BlockStatement, error) {
	node, ok := raw[field].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: missing %q block", d.pos(raw), field)
	}
	stmts, err := d.statements(node, "body")
	if err != nil {
		return nil, err
	}
	return &BlockStatement{Pos: d.pos(node), Statements: stmts}, nil
}

func (d *decoder) optBlock(raw map[string]any, field string) (*BlockStatement, error) {
	if _, present := raw[field]; !present || raw[field] == nil {
		return nil, nil
	}
	return d.block(raw, field)
}

func (d *decoder) statement(raw map[string]any) (Statement, error) {
	kind, _ := raw["kind"].(string)
	pos := d.pos(raw)
	switch kind {
	case "let", "var", "const":
		name, err := d.str(raw, "name")
		if err != nil {
			return nil, err
		}
		var value Expression
		if raw["value"] != nil {
			if value, err = d.expr(raw, "value"); err != nil {
				return nil, err
			}
		}
		return &LetStatement{Pos: pos, Kind: kind, Name: name, Value: value}, nil
	case "return":
		var value Expression
		var err error
		if raw["value"] != nil {
			if value, err = d.expr(raw, "value"); err != nil {
				return nil, err
			}
		}
		return &ReturnStatement{Pos: pos, Value: value}, nil
	case "expr_stmt":
		e, err := d.expr(raw, "expr")
		if err != nil {
			return nil, err
		}
		return &ExpressionStatement{Pos: pos, Expression: e}, nil
	case "block":
		stmts, err := d.statements(raw, "body")
		if err != nil {
			return nil, err
		}
		return &BlockStatement{Pos: pos, Statements: stmts}, nil
	case "if":
		cond, err := d.expr(raw, "cond")
		if err != nil {
			return nil, err
		}
		then, err := d.block(raw, "then")
		if err != nil {
			return nil, err
		}
		var alt Statement
		if node, ok := raw["else"].(map[string]any); ok {
			alt, err = d.statement(node)
			if err != nil {
				return nil, err
			}
		}
		return &IfStatement{Pos: pos, Condition: cond, Then: then, Else: alt}, nil
	case "while":
		cond, err := d.expr(raw, "cond")
		if err != nil {
			return nil, err
		}
		body, err := d.block(raw, "body")
		if err != nil {
			return nil, err
		}
		return &WhileStatement{Pos: pos, Condition: cond, Body: body}, nil
	case "for":
		st := &ForStatement{Pos: pos}
		var err error
		if node, ok := raw["init"].(map[string]any); ok {
			if st.Init, err = d.statement(node); err != nil {
				return nil, err
			}
		}
		if raw["cond"] != nil {
			if st.Condition, err = d.expr(raw, "cond"); err != nil {
				return nil, err
			}
		}
		if node, ok := raw["post"].(map[string]any); ok {
			if st.Post, err = d.statement(node); err != nil {
				return nil, err
			}
		}
		if st.Body, err = d.block(raw, "body"); err != nil {
			return nil, err
		}
		return st, nil
	case "for_in":
		name, err := d.str(raw, "name")
		if err != nil {
			return nil, err
		}
		iter, err := d.expr(raw, "iter")
		if err != nil {
			return nil, err
		}
		body, err := d.block(raw, "body")
		if err != nil {
			return nil, err
		}
		return &ForInStatement{Pos: pos, Name: name, Iterable: iter, Body: body}, nil
	case "break":
		return &BreakStatement{Pos: pos}, nil
	case "continue":
		return &ContinueStatement{Pos: pos}, nil
	case "throw":
		value, err := d.expr(raw, "value")
		if err != nil {
			return nil, err
		}
		return &ThrowStatement{Pos: pos, Value: value}, nil
	case "try":
		tryBlock, err := d.block(raw, "try")
		if err != nil {
			return nil, err
		}
		st := &TryStatement{Pos: pos, Try: tryBlock}
		if st.Catch, err = d.optBlock(raw, "catch"); err != nil {
			return nil, err
		}
		if st.Catch != nil {
			if st.CatchName, err = d.str(raw, "catch_name"); err != nil {
				return nil, err
			}
		}
		if st.Finally, err = d.optBlock(raw, "finally"); err != nil {
			return nil, err
		}
		if st.Catch == nil && st.Finally == nil {
			return nil, fmt.Errorf("%s: try needs a catch or finally clause", pos)
		}
		return st, nil
	case "match":
		subject, err := d.expr(raw, "subject")
		if err != nil {
			return nil, err
		}
		st := &MatchStatement{Pos: pos, Subject: subject}
		cases, ok := raw["cases"].([]any)
		if !ok {
			return nil, fmt.Errorf("%s: match needs a cases list", pos)
		}
		for _, item := range cases {
			node, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: match cases must be objects", pos)
			}
			mc := &MatchCase{Pos: d.pos(node)}
			if node["value"] != nil {
				if mc.Value, err = d.expr(node, "value"); err != nil {
					return nil, err
				}
			}
			if mc.Body, err = d.block(node, "body"); err != nil {
				return nil, err
			}
			st.Cases = append(st.Cases, mc)
		}
		return st, nil
	case "func_def":
		fn, err := d.functionLiteral(raw)
		if err != nil {
			return nil, err
		}
		if fn.Name == "" {
			return nil, fmt.Errorf("%s: func_def needs a name", pos)
		}
		return &FunctionStatement{Pos: pos, Name: fn.Name, Function: fn}, nil
	case "class_def":
		name, err := d.str(raw, "name")
		if err != nil {
			return nil, err
		}
		st := &ClassStatement{Pos: pos, Name: name}
		if base, ok := raw["base"].(string); ok {
			st.Base = base
		}
		methods, _ := raw["methods"].([]any)
		for _, item := range methods {
			node, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: class methods must be objects", pos)
			}
			fn, err := d.functionLiteral(node)
			if err != nil {
				return nil, err
			}
			st.Methods = append(st.Methods, &FunctionStatement{
				Pos:      d.pos(node),
				Name:     fn.Name,
				Function: fn,
			})
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%s: unknown statement kind %q", pos, kind)
	}
}

func (d *decoder) functionLiteral(raw map[string]any) (*FunctionLiteral, error) {
	pos := d.pos(raw)
	fn := &FunctionLiteral{Pos: pos}
	if name, ok := raw["name"].(string); ok {
		fn.Name = name
	}
	if isAsync, ok := raw["async"].(bool); ok {
		fn.IsAsync = isAsync
	}
	params, _ := raw["params"].([]any)
	for _, item := range params {
		node, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: params must be objects", pos)
		}
		p := &Parameter{Pos: d.pos(node)}
		var err error
		if p.Name, err = d.str(node, "name"); err != nil {
			return nil, err
		}
		if node["default"] != nil {
			if p.Default, err = d.expr(node, "default"); err != nil {
				return nil, err
			}
		}
		if variadic, ok := node["variadic"].(bool); ok {
			p.Variadic = variadic
		}
		fn.Parameters = append(fn.Parameters, p)
	}
	// Lambdas arrive with an "expr" body; wrap it in an implicit return.
	if node, ok := raw["expr"].(map[string]any); ok {
		e, err := d.expression(node)
		if err != nil {
			return nil, err
		}
		fn.Body = &BlockStatement{
			Pos:        e.Position(),
			Statements: []Statement{&ReturnStatement{Pos: e.Position(), Value: e}},
		}
		return fn, nil
	}
	body, err := d.block(raw, "body")
	if err != nil {
		return nil, err
	}
	fn.Body = body
	return fn, nil
}

func (d *decoder) str(raw map[string]any, field string) (string, error) {
	s, ok := raw[field].(string)
	if !ok {
		return "", fmt.Errorf("%s: missing %q string", d.pos(raw), field)
	}
	return s, nil
}

func (d *decoder) expr(raw map[string]any, field string) (Expression, error) {
	node, ok := raw[field].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: missing %q expression", d.pos(raw), field)
	}
	return d.expression(node)
}

func (d *decoder) exprList(raw map[string]any, field string) ([]Expression, error) {
	list, _ := raw[field].([]any)
	out := make([]Expression, 0, len(list))
	for _, item := range list {
		node, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q entries must be objects", d.pos(raw), field)
		}
		e, err := d.expression(node)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (d *decoder) expression(raw map[string]any) (Expression, error) {
	kind, _ := raw["kind"].(string)
	pos := d.pos(raw)
	switch kind {
	case "ident":
		name, err := d.str(raw, "name")
		if err != nil {
			return nil, err
		}
		return &Identifier{Pos: pos, Name: name}, nil
	case "int":
		n, ok := raw["value"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s: int needs a numeric value", pos)
		}
		v, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s: bad int literal %q", pos, n.String())
		}
		return &IntegerLiteral{Pos: pos, Value: v}, nil
	case "float":
		n, ok := raw["value"].(json.Number)
		if !ok {
			return nil, fmt.Errorf("%s: float needs a numeric value", pos)
		}
		v, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s: bad float literal %q", pos, n.String())
		}
		return &FloatLiteral{Pos: pos, Value: v}, nil
	case "string":
		v, err := d.str(raw, "value")
		if err != nil {
			return nil, err
		}
		return &StringLiteral{Pos: pos, Value: v}, nil
	case "bool":
		v, ok := raw["value"].(bool)
		if !ok {
			return nil, fmt.Errorf("%s: bool needs a boolean value", pos)
		}
		return &BooleanLiteral{Pos: pos, Value: v}, nil
	case "null":
		return &NullLiteral{Pos: pos}, nil
	case "array":
		elems, err := d.exprList(raw, "elements")
		if err != nil {
			return nil, err
		}
		return &ArrayLiteral{Pos: pos, Elements: elems}, nil
	case "object":
		entries, _ := raw["entries"].([]any)
		ol := &ObjectLiteral{Pos: pos}
		for _, item := range entries {
			node, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: object entries must be objects", pos)
			}
			key, err := d.str(node, "key")
			if err != nil {
				return nil, err
			}
			value, err := d.expr(node, "value")
			if err != nil {
				return nil, err
			}
			ol.Keys = append(ol.Keys, key)
			ol.Values = append(ol.Values, value)
		}
		return ol, nil
	case "prefix":
		op, err := d.str(raw, "op")
		if err != nil {
			return nil, err
		}
		right, err := d.expr(raw, "right")
		if err != nil {
			return nil, err
		}
		return &PrefixExpression{Pos: pos, Operator: op, Right: right}, nil
	case "infix":
		op, err := d.str(raw, "op")
		if err != nil {
			return nil, err
		}
		left, err := d.expr(raw, "left")
		if err != nil {
			return nil, err
		}
		right, err := d.expr(raw, "right")
		if err != nil {
			return nil, err
		}
		return &InfixExpression{Pos: pos, Operator: op, Left: left, Right: right}, nil
	case "ternary":
		cond, err := d.expr(raw, "cond")
		if err != nil {
			return nil, err
		}
		then, err := d.expr(raw, "then")
		if err != nil {
			return nil, err
		}
		alt, err := d.expr(raw, "else")
		if err != nil {
			return nil, err
		}
		return &TernaryExpression{Pos: pos, Condition: cond, Then: then, Else: alt}, nil
	case "assign":
		target, err := d.expr(raw, "target")
		if err != nil {
			return nil, err
		}
		switch target.(type) {
		case *Identifier, *IndexExpression, *MemberExpression:
		default:
			return nil, fmt.Errorf("%s: invalid assignment target", pos)
		}
		value, err := d.expr(raw, "value")
		if err != nil {
			return nil, err
		}
		return &AssignExpression{Pos: pos, Target: target, Value: value}, nil
	case "func", "lambda":
		return d.functionLiteral(raw)
	case "call":
		fn, err := d.expr(raw, "callee")
		if err != nil {
			return nil, err
		}
		args, err := d.exprList(raw, "args")
		if err != nil {
			return nil, err
		}
		return &CallExpression{Pos: pos, Function: fn, Arguments: args}, nil
	case "index":
		left, err := d.expr(raw, "left")
		if err != nil {
			return nil, err
		}
		index, err := d.expr(raw, "index")
		if err != nil {
			return nil, err
		}
		return &IndexExpression{Pos: pos, Left: left, Index: index}, nil
	case "member":
		obj, err := d.expr(raw, "object")
		if err != nil {
			return nil, err
		}
		prop, err := d.str(raw, "property")
		if err != nil {
			return nil, err
		}
		return &MemberExpression{Pos: pos, Object: obj, Property: prop}, nil
	case "new":
		class, err := d.expr(raw, "class")
		if err != nil {
			return nil, err
		}
		args, err := d.exprList(raw, "args")
		if err != nil {
			return nil, err
		}
		return &NewExpression{Pos: pos, Class: class, Arguments: args}, nil
	case "this":
		return &ThisExpression{Pos: pos}, nil
	case "super":
		return &SuperExpression{Pos: pos}, nil
	case "await":
		value, err := d.expr(raw, "value")
		if err != nil {
			return nil, err
		}
		return &AwaitExpression{Pos: pos, Value: value}, nil
	default:
		return nil, fmt.Errorf("%s: unknown expression kind %q", pos, kind)
	}
}
