package declare

import (
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	errs "github.com/matzehuels/shelf/pkg/errors"
)

// Option configures Parse.
type Option func(*options)

type options struct {
	requireVersion bool
}

// WithRequireVersion makes a missing or empty version argument a
// declaration error instead of an implicit [Latest].
func WithRequireVersion(require bool) Option {
	return func(o *options) { o.requireVersion = require }
}

// Node wraps script bodies in a function before running them, so a
// top-level return is legal there. The wrapper has no newline, which keeps
// line numbers intact.
const moduleWrapper = "(function (exports, require, module, __filename, __dirname) { "

// ParseFile reads path and parses its contents. The path is used as the file
// name in errors.
func ParseFile(path string, opts ...Option) ([]Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrCodeFileNotFound, err, "script not found: %s", path)
		}
		return nil, errs.Wrap(errs.ErrCodeInvalidInput, err, "read script %s", path)
	}
	return Parse(path, string(data), opts...)
}

// Parse returns every include() declaration in src, in document order. The
// script is never evaluated. filename only labels errors.
//
// The returned error is a *SyntaxError when src is not valid JavaScript and a
// *DeclarationError for the first include() call that breaks the declaration
// rules.
func Parse(filename, src string, opts ...Option) ([]Site, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	text := stripShebang(src)
	prog, err := parser.ParseFile(nil, filename, text, 0)
	shift := 0
	if err != nil && strings.Contains(err.Error(), "Illegal return statement") {
		wrapped, werr := parser.ParseFile(nil, filename, moduleWrapper+text+"\n})", 0)
		if werr == nil {
			prog, err, shift = wrapped, nil, len(moduleWrapper)
		}
	}
	if err != nil {
		return nil, syntaxError(filename, err)
	}

	w := &walker{file: filename, src: src, shift: shift, opts: o}
	w.statements(prog.Body, scope{})
	if w.err != nil {
		return nil, w.err
	}

	sort.SliceStable(w.sites, func(i, j int) bool {
		a, b := w.sites[i], w.sites[j]
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return w.sites, nil
}

// stripShebang blanks out a leading "#!" line with a comment of the same
// length so offsets still line up with the original text.
func stripShebang(src string) string {
	if !strings.HasPrefix(src, "#!") {
		return src
	}
	end := strings.IndexByte(src, '\n')
	if end < 0 {
		end = len(src)
	}
	return "//" + strings.Repeat(" ", end-2) + src[end:]
}

func syntaxError(filename string, err error) error {
	se := &SyntaxError{File: filename, Reason: err.Error()}

	var list parser.ErrorList
	var single *parser.Error
	switch {
	case errors.As(err, &list) && len(list) > 0:
		single = list[0]
	case errors.As(err, &single):
	}
	if single != nil {
		se.Line = single.Position.Line
		se.Column = single.Position.Column
		se.Reason = single.Message
	}
	se.Incomplete = strings.Contains(se.Reason, "end of input")
	return se
}

// scope is the lexical context threaded through the walk.
type scope struct {
	variable string
}

type walker struct {
	file  string
	src   string
	shift int
	opts  options
	sites []Site
	err   error
}

func (w *walker) offset(idx file.Idx) int {
	off := int(idx) - 1 - w.shift
	if off < 0 {
		return 0
	}
	if off > len(w.src) {
		return len(w.src)
	}
	return off
}

func (w *walker) position(idx file.Idx) (line, column int) {
	if idx <= 0 {
		return 0, 0
	}
	before := w.src[:w.offset(idx)]
	line = strings.Count(before, "\n") + 1
	column = len(before) - strings.LastIndexByte(before, '\n')
	return line, column
}

// text returns the source of n with whitespace runs collapsed.
func (w *walker) text(n ast.Node) string {
	from, to := w.offset(n.Idx0()), w.offset(n.Idx1())
	if from >= to {
		return ""
	}
	return strings.Join(strings.Fields(w.src[from:to]), " ")
}

func (w *walker) statements(list []ast.Statement, s scope) {
	for _, st := range list {
		if w.err != nil {
			return
		}
		w.statement(st, s)
	}
}

func (w *walker) block(b *ast.BlockStatement, s scope) {
	if b != nil {
		w.statements(b.List, s)
	}
}

func (w *walker) statement(n ast.Statement, s scope) {
	if n == nil || w.err != nil {
		return
	}
	switch n := n.(type) {
	case *ast.ExpressionStatement:
		w.expr(n.Expression, s)
	case *ast.VariableStatement:
		w.bindings(n.List, s)
	case *ast.LexicalDeclaration:
		w.bindings(n.List, s)
	case *ast.BlockStatement:
		w.statements(n.List, s)
	case *ast.IfStatement:
		w.expr(n.Test, s)
		w.statement(n.Consequent, s)
		w.statement(n.Alternate, s)
	case *ast.ForStatement:
		w.forInit(n.Initializer, s)
		w.expr(n.Test, s)
		w.expr(n.Update, s)
		w.statement(n.Body, s)
	case *ast.ForInStatement:
		w.forInto(n.Into, s)
		w.expr(n.Source, s)
		w.statement(n.Body, s)
	case *ast.ForOfStatement:
		w.forInto(n.Into, s)
		w.expr(n.Source, s)
		w.statement(n.Body, s)
	case *ast.WhileStatement:
		w.expr(n.Test, s)
		w.statement(n.Body, s)
	case *ast.DoWhileStatement:
		w.statement(n.Body, s)
		w.expr(n.Test, s)
	case *ast.ReturnStatement:
		w.expr(n.Argument, s)
	case *ast.ThrowStatement:
		w.expr(n.Argument, s)
	case *ast.TryStatement:
		w.block(n.Body, s)
		if n.Catch != nil {
			w.expr(n.Catch.Parameter, s)
			w.block(n.Catch.Body, s)
		}
		w.block(n.Finally, s)
	case *ast.SwitchStatement:
		w.expr(n.Discriminant, s)
		for _, c := range n.Body {
			w.expr(c.Test, s)
			w.statements(c.Consequent, s)
		}
	case *ast.LabelledStatement:
		w.statement(n.Statement, s)
	case *ast.WithStatement:
		w.expr(n.Object, s)
		w.statement(n.Body, s)
	case *ast.FunctionDeclaration:
		w.function(n.Function, s)
	case *ast.ClassDeclaration:
		w.class(n.Class, s)
	}
}

func (w *walker) forInit(n ast.ForLoopInitializer, s scope) {
	switch n := n.(type) {
	case *ast.ForLoopInitializerExpression:
		w.expr(n.Expression, s)
	case *ast.ForLoopInitializerVarDeclList:
		w.bindings(n.List, s)
	case *ast.ForLoopInitializerLexicalDecl:
		w.bindings(n.LexicalDeclaration.List, s)
	}
}

func (w *walker) forInto(n ast.ForInto, s scope) {
	switch n := n.(type) {
	case *ast.ForIntoVar:
		w.binding(n.Binding, s)
	case *ast.ForIntoExpression:
		w.expr(n.Expression, s)
	case *ast.ForDeclaration:
		w.expr(n.Target, s)
	}
}

func (w *walker) bindings(list []*ast.Binding, s scope) {
	for _, b := range list {
		if w.err != nil {
			return
		}
		w.binding(b, s)
	}
}

// binding walks the defaults inside a destructuring target, then the
// initializer.
func (w *walker) binding(b *ast.Binding, s scope) {
	if b == nil {
		return
	}
	switch t := b.Target.(type) {
	case *ast.Identifier:
		s = scope{variable: t.Name.String()}
	case nil:
	default:
		w.expr(t, s)
		s = scope{variable: w.text(t)}
	}
	w.expr(b.Initializer, s)
}

func (w *walker) exprs(list []ast.Expression, s scope) {
	for _, e := range list {
		if w.err != nil {
			return
		}
		w.expr(e, s)
	}
}

func (w *walker) expr(n ast.Expression, s scope) {
	if n == nil || w.err != nil {
		return
	}
	switch n := n.(type) {
	case *ast.CallExpression:
		if isInclude(n.Callee) {
			w.include(n, s)
			return
		}
		w.expr(n.Callee, s)
		w.exprs(n.ArgumentList, s)
	case *ast.NewExpression:
		w.expr(n.Callee, s)
		w.exprs(n.ArgumentList, s)
	case *ast.AssignExpression:
		w.expr(n.Left, s)
		w.expr(n.Right, scope{variable: w.text(n.Left)})
	case *ast.DotExpression:
		w.expr(n.Left, s)
	case *ast.BracketExpression:
		w.expr(n.Left, s)
		w.expr(n.Member, s)
	case *ast.BinaryExpression:
		w.expr(n.Left, s)
		w.expr(n.Right, s)
	case *ast.UnaryExpression:
		w.expr(n.Operand, s)
	case *ast.ConditionalExpression:
		w.expr(n.Test, s)
		w.expr(n.Consequent, s)
		w.expr(n.Alternate, s)
	case *ast.SequenceExpression:
		w.exprs(n.Sequence, s)
	case *ast.ArrayLiteral:
		w.exprs(n.Value, s)
	case *ast.ObjectLiteral:
		for _, p := range n.Value {
			switch p := p.(type) {
			case *ast.PropertyKeyed:
				w.expr(p.Key, s)
				w.expr(p.Value, s)
			case *ast.PropertyShort:
				w.expr(p.Initializer, scope{variable: p.Name.Name.String()})
			case *ast.SpreadElement:
				w.expr(p.Expression, s)
			}
		}
	case *ast.ObjectPattern:
		for _, p := range n.Properties {
			switch p := p.(type) {
			case *ast.PropertyKeyed:
				if p.Computed {
					w.expr(p.Key, s)
				}
				w.expr(p.Value, s)
			case *ast.PropertyShort:
				w.expr(p.Initializer, scope{variable: p.Name.Name.String()})
			}
		}
		w.expr(n.Rest, s)
	case *ast.ArrayPattern:
		w.exprs(n.Elements, s)
		w.expr(n.Rest, s)
	case *ast.SpreadElement:
		w.expr(n.Expression, s)
	case *ast.TemplateLiteral:
		w.expr(n.Tag, s)
		w.exprs(n.Expressions, s)
	case *ast.FunctionLiteral:
		w.function(n, s)
	case *ast.ArrowFunctionLiteral:
		w.arrow(n, s)
	case *ast.ClassLiteral:
		w.class(n, s)
	case *ast.AwaitExpression:
		w.expr(n.Argument, s)
	case *ast.YieldExpression:
		w.expr(n.Argument, s)
	case *ast.OptionalChain:
		w.expr(n.Expression, s)
	case *ast.Optional:
		w.expr(n.Expression, s)
	}
}

func (w *walker) params(p *ast.ParameterList, s scope) {
	if p != nil {
		w.bindings(p.List, s)
		w.expr(p.Rest, s)
	}
}

func (w *walker) function(f *ast.FunctionLiteral, s scope) {
	if f == nil {
		return
	}
	w.params(f.ParameterList, s)
	w.block(f.Body, s)
}

func (w *walker) arrow(f *ast.ArrowFunctionLiteral, s scope) {
	w.params(f.ParameterList, s)
	switch body := f.Body.(type) {
	case *ast.BlockStatement:
		w.block(body, s)
	case *ast.ExpressionBody:
		w.expr(body.Expression, s)
	}
}

func (w *walker) class(c *ast.ClassLiteral, s scope) {
	if c == nil {
		return
	}
	w.expr(c.SuperClass, s)
	for _, el := range c.Body {
		switch el := el.(type) {
		case *ast.FieldDefinition:
			if el.Computed {
				w.expr(el.Key, s)
			}
			w.expr(el.Initializer, s)
		case *ast.MethodDefinition:
			if el.Computed {
				w.expr(el.Key, s)
			}
			w.function(el.Body, s)
		case *ast.ClassStaticBlock:
			w.block(el.Block, s)
		}
	}
}

func isInclude(callee ast.Expression) bool {
	switch c := callee.(type) {
	case *ast.Identifier:
		return c.Name.String() == Identifier
	case *ast.Optional:
		return isInclude(c.Expression)
	}
	return false
}

// include validates one include() call and records it.
func (w *walker) include(call *ast.CallExpression, s scope) {
	line, col := w.position(call.Idx0())
	site := Site{Variable: s.variable, Line: line, Column: col}

	fail := func(reason string) {
		w.err = &DeclarationError{
			File:     w.file,
			Line:     line,
			Column:   col,
			Variable: s.variable,
			Reason:   reason,
		}
	}

	args := call.ArgumentList
	if len(args) < 1 || len(args) > 2 {
		fail(msgArity)
		return
	}

	switch name := args[0].(type) {
	case *ast.StringLiteral:
		site.Name = name.Value.String()
	case *ast.NumberLiteral, *ast.BooleanLiteral, *ast.NullLiteral:
		fail(msgNameType)
		return
	default:
		fail(msgNameLiteral)
		return
	}
	if site.Name == "" {
		fail(msgNameEmpty)
		return
	}

	if len(args) == 2 {
		switch v := args[1].(type) {
		case *ast.StringLiteral:
			site.Version = v.Value.String()
			site.HasVersion = true
		case *ast.NumberLiteral, *ast.BooleanLiteral, *ast.NullLiteral:
			fail(msgVersionType)
			return
		default:
			fail(msgVersionLiteral)
			return
		}
	}
	if w.opts.requireVersion && (!site.HasVersion || site.Version == "") {
		fail(msgVersionRequired)
		return
	}

	w.sites = append(w.sites, site)
}
