package ast

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Pos locates a node in its originating source unit.
type Pos struct {
	Line   int
	Col    int
	Source string
}

func (p Pos) String() string {
	if p.Source == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.Source, p.Line, p.Col)
}

// The base Node interface
type Node interface {
	Position() Pos
	String() string
}

type Statement interface {
	Node
	statementNode()
}

type Expression interface {
	Node
	expressionNode()
}

type Program struct {
	Statements []Statement
	Source     string
}

func (p *Program) Position() Pos {
	if len(p.Statements) > 0 {
		return p.Statements[0].Position()
	}
	return Pos{Source: p.Source}
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, s := range p.Statements {
		out.WriteString(s.String())
	}
	return out.String()
}

// LetStatement introduces a binding in the current scope. Kind is one of
// "let", "var" or "const"; only "const" bindings are immutable.
type LetStatement struct {
	Pos   Pos
	Kind  string
	Name  string
	Value Expression
}

func (ls *LetStatement) statementNode() {}
func (ls *LetStatement) Position() Pos  { return ls.Pos }
func (ls *LetStatement) String() string {
	var out bytes.Buffer
	out.WriteString(ls.Kind + " " + ls.Name)
	if ls.Value != nil {
		out.WriteString(" = ")
		out.WriteString(ls.Value.String())
	}
	out.WriteString(";")
	return out.String()
}

type ReturnStatement struct {
	Pos   Pos
	Value Expression
}

func (rs *ReturnStatement) statementNode() {}
func (rs *ReturnStatement) Position() Pos  { return rs.Pos }
func (rs *ReturnStatement) String() string {
	var out bytes.Buffer
	out.WriteString("return")
	if rs.Value != nil {
		out.WriteString(" " + rs.Value.String())
	}
	out.WriteString(";")
	return out.String()
}

type ExpressionStatement struct {
	Pos        Pos
	Expression Expression
}

func (es *ExpressionStatement) statementNode() {}
func (es *ExpressionStatement) Position() Pos  { return es.Pos }
func (es *ExpressionStatement) String() string {
	if es.Expression != nil {
		return es.Expression.String()
	}
	return ""
}

type BlockStatement struct {
	Pos        Pos
	Statements []Statement
}

func (bs *BlockStatement) statementNode() {}
func (bs *BlockStatement) Position() Pos  { return bs.Pos }
func (bs *BlockStatement) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, s := range bs.Statements {
		out.WriteString(s.String())
	}
	out.WriteString(" }")
	return out.String()
}

type IfStatement struct {
	Pos       Pos
	Condition Expression
	Then      *BlockStatement
	Else      Statement // *BlockStatement or *IfStatement, nil when absent
}

func (is *IfStatement) statementNode() {}
func (is *IfStatement) Position() Pos  { return is.Pos }
func (is *IfStatement) String() string {
	var out bytes.Buffer
	out.WriteString("if " + is.Condition.String() + " " + is.Then.String())
	if is.Else != nil {
		out.WriteString(" else " + is.Else.String())
	}
	return out.String()
}

type WhileStatement struct {
	Pos       Pos
	Condition Expression
	Body      *BlockStatement
}

func (ws *WhileStatement) statementNode() {}
func (ws *WhileStatement) Position() Pos  { return ws.Pos }
func (ws *WhileStatement) String() string {
	return "while " + ws.Condition.String() + " " + ws.Body.String()
}

// ForStatement is the three-clause form. Any of Init, Condition and Post may
// be nil.
type ForStatement struct {
	Pos       Pos
	Init      Statement
	Condition Expression
	Post      Statement
	Body      *BlockStatement
}

func (fs *ForStatement) statementNode() {}
func (fs *ForStatement) Position() Pos  { return fs.Pos }
func (fs *ForStatement) String() string {
	var out bytes.Buffer
	out.WriteString("for ")
	if fs.Init != nil {
		out.WriteString(fs.Init.String())
	}
	out.WriteString("; ")
	if fs.Condition != nil {
		out.WriteString(fs.Condition.String())
	}
	out.WriteString("; ")
	if fs.Post != nil {
		out.WriteString(fs.Post.String())
	}
	out.WriteString(" " + fs.Body.String())
	return out.String()
}

type ForInStatement struct {
	Pos      Pos
	Name     string
	Iterable Expression
	Body     *BlockStatement
}

func (fi *ForInStatement) statementNode() {}
func (fi *ForInStatement) Position() Pos  { return fi.Pos }
func (fi *ForInStatement) String() string {
	return "for " + fi.Name + " in " + fi.Iterable.String() + " " + fi.Body.String()
}

type BreakStatement struct {
	Pos Pos
}

func (bs *BreakStatement) statementNode() {}
func (bs *BreakStatement) Position() Pos  { return bs.Pos }
func (bs *BreakStatement) String() string { return "break;" }

type ContinueStatement struct {
	Pos Pos
}

func (cs *ContinueStatement) statementNode() {}
func (cs *ContinueStatement) Position() Pos  { return cs.Pos }
func (cs *ContinueStatement) String() string { return "continue;" }

type ThrowStatement struct {
	Pos   Pos
	Value Expression
}

func (ts *ThrowStatement) statementNode() {}
func (ts *ThrowStatement) Position() Pos  { return ts.Pos }
func (ts *ThrowStatement) String() string { return "throw " + ts.Value.String() + ";" }

// TryStatement covers try/catch, try/finally and try/catch/finally.
// CatchName is the identifier the caught error is bound to; it is empty
// when there is no catch clause.
type TryStatement struct {
	Pos       Pos
	Try       *BlockStatement
	CatchName string
	Catch     *BlockStatement
	Finally   *BlockStatement
}

func (ts *TryStatement) statementNode() {}
func (ts *TryStatement) Position() Pos  { return ts.Pos }
func (ts *TryStatement) String() string {
	var out bytes.Buffer
	out.WriteString("try " + ts.Try.String())
	if ts.Catch != nil {
		out.WriteString(" catch (" + ts.CatchName + ") " + ts.Catch.String())
	}
	if ts.Finally != nil {
		out.WriteString(" finally " + ts.Finally.String())
	}
	return out.String()
}

type MatchCase struct {
	Pos   Pos
	Value Expression // nil for the default case
	Body  *BlockStatement
}

type MatchStatement struct {
	Pos     Pos
	Subject Expression
	Cases   []*MatchCase
}

func (ms *MatchStatement) statementNode() {}
func (ms *MatchStatement) Position() Pos  { return ms.Pos }
func (ms *MatchStatement) String() string {
	var out bytes.Buffer
	out.WriteString("match " + ms.Subject.String() + " { ")
	for _, c := range ms.Cases {
		if c.Value == nil {
			out.WriteString("default ")
		} else {
			out.WriteString("case " + c.Value.String() + " ")
		}
		out.WriteString(c.Body.String() + " ")
	}
	out.WriteString("}")
	return out.String()
}

type FunctionStatement struct {
	Pos      Pos
	Name     string
	Function *FunctionLiteral
}

func (fs *FunctionStatement) statementNode() {}
func (fs *FunctionStatement) Position() Pos  { return fs.Pos }
func (fs *FunctionStatement) String() string { return fs.Function.String() }

type ClassStatement struct {
	Pos     Pos
	Name    string
	Base    string // empty when the class has no base
	Methods []*FunctionStatement
}

func (cs *ClassStatement) statementNode() {}
func (cs *ClassStatement) Position() Pos  { return cs.Pos }
func (cs *ClassStatement) String() string {
	var out bytes.Buffer
	out.WriteString("class " + cs.Name)
	if cs.Base != "" {
		out.WriteString(" < " + cs.Base)
	}
	out.WriteString(" { ")
	for _, m := range cs.Methods {
		out.WriteString(m.String() + " ")
	}
	out.WriteString("}")
	return out.String()
}

// Expressions

type Identifier struct {
	Pos  Pos
	Name string
}

func (i *Identifier) expressionNode() {}
func (i *Identifier) Position() Pos   { return i.Pos }
func (i *Identifier) String() string  { return i.Name }

type IntegerLiteral struct {
	Pos   Pos
	Value int64
}

func (il *IntegerLiteral) expressionNode() {}
func (il *IntegerLiteral) Position() Pos   { return il.Pos }
func (il *IntegerLiteral) String() string  { return strconv.FormatInt(il.Value, 10) }

type FloatLiteral struct {
	Pos   Pos
	Value float64
}

func (fl *FloatLiteral) expressionNode() {}
func (fl *FloatLiteral) Position() Pos   { return fl.Pos }
func (fl *FloatLiteral) String() string  { return strconv.FormatFloat(fl.Value, 'g', -1, 64) }

type StringLiteral struct {
	Pos   Pos
	Value string
}

func (sl *StringLiteral) expressionNode() {}
func (sl *StringLiteral) Position() Pos   { return sl.Pos }
func (sl *StringLiteral) String() string  { return strconv.Quote(sl.Value) }

type BooleanLiteral struct {
	Pos   Pos
	Value bool
}

func (bl *BooleanLiteral) expressionNode() {}
func (bl *BooleanLiteral) Position() Pos   { return bl.Pos }
func (bl *BooleanLiteral) String() string  { return strconv.FormatBool(bl.Value) }

type NullLiteral struct {
	Pos Pos
}

func (nl *NullLiteral) expressionNode() {}
func (nl *NullLiteral) Position() Pos   { return nl.Pos }
func (nl *NullLiteral) String() string  { return "null" }

type ArrayLiteral struct {
	Pos      Pos
	Elements []Expression
}

func (al *ArrayLiteral) expressionNode() {}
func (al *ArrayLiteral) Position() Pos   { return al.Pos }
func (al *ArrayLiteral) String() string {
	elems := make([]string, 0, len(al.Elements))
	for _, e := range al.Elements {
		elems = append(elems, e.String())
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

// ObjectLiteral keys keep their written order; iteration over the resulting
// value follows it.
type ObjectLiteral struct {
	Pos    Pos
	Keys   []string
	Values []Expression
}

func (ol *ObjectLiteral) expressionNode() {}
func (ol *ObjectLiteral) Position() Pos   { return ol.Pos }
func (ol *ObjectLiteral) String() string {
	pairs := make([]string, 0, len(ol.Keys))
	for i, k := range ol.Keys {
		pairs = append(pairs, strconv.Quote(k)+": "+ol.Values[i].String())
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

type PrefixExpression struct {
	Pos      Pos
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode() {}
func (pe *PrefixExpression) Position() Pos   { return pe.Pos }
func (pe *PrefixExpression) String() string {
	return "(" + pe.Operator + pe.Right.String() + ")"
}

type InfixExpression struct {
	Pos      Pos
	Operator string
	Left     Expression
	Right    Expression
}

func (ie *InfixExpression) expressionNode() {}
func (ie *InfixExpression) Position() Pos   { return ie.Pos }
func (ie *InfixExpression) String() string {
	return "(" + ie.Left.String() + " " + ie.Operator + " " + ie.Right.String() + ")"
}

type TernaryExpression struct {
	Pos       Pos
	Condition Expression
	Then      Expression
	Else      Expression
}

func (te *TernaryExpression) expressionNode() {}
func (te *TernaryExpression) Position() Pos   { return te.Pos }
func (te *TernaryExpression) String() string {
	return "(" + te.Condition.String() + " ? " + te.Then.String() + " : " + te.Else.String() + ")"
}

// AssignExpression writes to an Identifier, IndexExpression or
// MemberExpression target and yields the assigned value.
type AssignExpression struct {
	Pos    Pos
	Target Expression
	Value  Expression
}

func (ae *AssignExpression) expressionNode() {}
func (ae *AssignExpression) Position() Pos   { return ae.Pos }
func (ae *AssignExpression) String() string {
	return ae.Target.String() + " = " + ae.Value.String()
}

type Parameter struct {
	Pos      Pos
	Name     string
	Default  Expression // nil when the parameter has no default
	Variadic bool
}

func (p *Parameter) String() string {
	var out bytes.Buffer
	if p.Variadic {
		out.WriteString("...")
	}
	out.WriteString(p.Name)
	if p.Default != nil {
		out.WriteString(" = " + p.Default.String())
	}
	return out.String()
}

type FunctionLiteral struct {
	Pos        Pos
	Name       string // empty for anonymous functions
	Parameters []*Parameter
	Body       *BlockStatement
	IsAsync    bool
}

func (fl *FunctionLiteral) expressionNode() {}
func (fl *FunctionLiteral) Position() Pos   { return fl.Pos }
func (fl *FunctionLiteral) String() string {
	params := make([]string, 0, len(fl.Parameters))
	for _, p := range fl.Parameters {
		params = append(params, p.String())
	}
	var out bytes.Buffer
	if fl.IsAsync {
		out.WriteString("async ")
	}
	out.WriteString("func")
	if fl.Name != "" {
		out.WriteString(" " + fl.Name)
	}
	out.WriteString("(" + strings.Join(params, ", ") + ") " + fl.Body.String())
	return out.String()
}

type CallExpression struct {
	Pos       Pos
	Function  Expression
	Arguments []Expression
}

func (ce *CallExpression) expressionNode() {}
func (ce *CallExpression) Position() Pos   { return ce.Pos }
func (ce *CallExpression) String() string {
	args := make([]string, 0, len(ce.Arguments))
	for _, a := range ce.Arguments {
		args = append(args, a.String())
	}
	return ce.Function.String() + "(" + strings.Join(args, ", ") + ")"
}

type IndexExpression struct {
	Pos   Pos
	Left  Expression
	Index Expression
}

func (ie *IndexExpression) expressionNode() {}
func (ie *IndexExpression) Position() Pos   { return ie.Pos }
func (ie *IndexExpression) String() string {
	return "(" + ie.Left.String() + "[" + ie.Index.String() + "])"
}

type MemberExpression struct {
	Pos      Pos
	Object   Expression
	Property string
}

func (me *MemberExpression) expressionNode() {}
func (me *MemberExpression) Position() Pos   { return me.Pos }
func (me *MemberExpression) String() string {
	return me.Object.String() + "." + me.Property
}

type NewExpression struct {
	Pos       Pos
	Class     Expression
	Arguments []Expression
}

func (ne *NewExpression) expressionNode() {}
func (ne *NewExpression) Position() Pos   { return ne.Pos }
func (ne *NewExpression) String() string {
	args := make([]string, 0, len(ne.Arguments))
	for _, a := range ne.Arguments {
		args = append(args, a.String())
	}
	return "new " + ne.Class.String() + "(" + strings.Join(args, ", ") + ")"
}

type ThisExpression struct {
	Pos Pos
}

func (te *ThisExpression) expressionNode() {}
func (te *ThisExpression) Position() Pos   { return te.Pos }
func (te *ThisExpression) String() string  { return "this" }

// SuperExpression appears only as the object of a MemberExpression inside a
// method body, e.g. super.__init__(...).
type SuperExpression struct {
	Pos Pos
}

func (se *SuperExpression) expressionNode() {}
func (se *SuperExpression) Position() Pos   { return se.Pos }
func (se *SuperExpression) String() string  { return "super" }

type AwaitExpression struct {
	Pos   Pos
	Value Expression
}

func (ae *AwaitExpression) expressionNode() {}
func (ae *AwaitExpression) Position() Pos   { return ae.Pos }
func (ae *AwaitExpression) String() string  { return "await " + ae.Value.String() }
