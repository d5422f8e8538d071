package sheetcalc

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// SheetView is the read-only sheet access a formula evaluates against.
// *Sheet implements it; evaluation pulls referenced cell values through it.
type SheetView interface {
	GetCell(pos Position) (*Cell, error)
}

// Formula is a parsed, compiled spreadsheet expression: numbers, cell
// references, the four arithmetic operators, unary sign and parentheses.
type Formula struct {
	expression string      // canonical pretty-printed form
	program    *vm.Program // compiled with integer literals patched to floats
	refs       []Position  // sorted, deduplicated, in-range references
	identPos   map[string]Position
	refErr     bool // the expression mentions an out-of-range cell
}

// cellNameRegexp matches identifiers that are cell references, e.g. "A1",
// "XFD16384". Lowercase identifiers are not references and fail parsing.
var cellNameRegexp = regexp.MustCompile(`^[A-Z]{1,3}[0-9]+$`)

// ParseFormula parses and compiles an expression (without the leading "=").
// Parse failures and identifiers that are not cell references wrap
// ErrFormulaParse. References outside the addressable area parse fine but
// make the formula evaluate to FormulaError{ErrorKindRef}.
func ParseFormula(expression string) (*Formula, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormulaParse, err)
	}

	v := &formulaVisitor{identPos: make(map[string]Position)}
	ast.Walk(&tree.Node, v)
	if v.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormulaParse, v.err)
	}

	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.Patch(floatLiterals{}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormulaParse, err)
	}

	refs := make([]Position, 0, len(v.identPos))
	seen := make(map[Position]struct{}, len(v.identPos))
	for _, pos := range v.identPos {
		if _, ok := seen[pos]; ok {
			continue
		}
		seen[pos] = struct{}{}
		refs = append(refs, pos)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })

	return &Formula{
		expression: tree.Node.String(),
		program:    program,
		refs:       refs,
		identPos:   v.identPos,
		refErr:     v.refErr,
	}, nil
}

// GetExpression returns the canonical pretty-printed form of the expression.
func (f *Formula) GetExpression() string {
	return f.expression
}

// GetReferencedCells returns the referenced positions, sorted row-major and
// deduplicated. Out-of-range references are excluded; they surface as a REF
// error at evaluation instead.
func (f *Formula) GetReferencedCells() []Position {
	return f.refs
}

// Evaluate computes the formula against the given sheet view. The returned
// error, if any, is always a FormulaError.
func (f *Formula) Evaluate(view SheetView) (float64, error) {
	if f.refErr {
		return 0, FormulaError{ErrorKindRef}
	}

	env := make(map[string]any, len(f.identPos))
	for name, pos := range f.identPos {
		num, err := referencedValue(view, pos)
		if err != nil {
			return 0, err
		}
		env[name] = num
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return 0, FormulaError{ErrorKindValue}
	}

	var num float64
	switch v := out.(type) {
	case float64:
		num = v
	case int:
		num = float64(v)
	default:
		return 0, FormulaError{ErrorKindValue}
	}
	if math.IsInf(num, 0) || math.IsNaN(num) {
		return 0, FormulaError{ErrorKindDiv0}
	}
	return num, nil
}

// referencedValue coerces one referenced cell to a number: unmaterialized and
// empty cells count as 0, numeric text converts, other text is a VALUE error,
// and a referent's own error propagates as-is.
func referencedValue(view SheetView, pos Position) (float64, error) {
	cell, err := view.GetCell(pos)
	if err != nil {
		return 0, FormulaError{ErrorKindRef}
	}
	if cell == nil {
		return 0, nil
	}
	switch v := cell.GetValue().(type) {
	case float64:
		return v, nil
	case FormulaError:
		return 0, v
	case string:
		if v == "" {
			return 0, nil
		}
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, FormulaError{ErrorKindValue}
		}
		return num, nil
	}
	return 0, FormulaError{ErrorKindValue}
}

// AsFormulaError extracts a FormulaError from an evaluation error, mapping
// anything unexpected to a VALUE error.
func AsFormulaError(err error) FormulaError {
	var fe FormulaError
	if errors.As(err, &fe) {
		return fe
	}
	return FormulaError{ErrorKindValue}
}

// formulaVisitor restricts the expression to the spreadsheet grammar and
// classifies identifiers into in-range and out-of-range cell references.
type formulaVisitor struct {
	identPos map[string]Position
	refErr   bool
	err      error
}

func (v *formulaVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode:
	case *ast.IdentifierNode:
		if !cellNameRegexp.MatchString(n.Value) {
			v.err = fmt.Errorf("unknown name %q", n.Value)
			return
		}
		pos, err := ParsePosition(n.Value)
		if err != nil {
			v.err = fmt.Errorf("bad cell reference %q", n.Value)
			return
		}
		if !pos.IsValid() {
			v.refErr = true
			return
		}
		v.identPos[n.Value] = pos
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			v.err = fmt.Errorf("operator %q not allowed", n.Operator)
		}
	case *ast.BinaryNode:
		switch n.Operator {
		case "+", "-", "*", "/":
		default:
			v.err = fmt.Errorf("operator %q not allowed", n.Operator)
		}
	default:
		v.err = fmt.Errorf("unsupported expression element %T", n)
	}
}

// floatLiterals patches integer literals to floats at compile time so all
// arithmetic, division included, runs in float space.
type floatLiterals struct{}

func (floatLiterals) Visit(node *ast.Node) {
	if n, ok := (*node).(*ast.IntegerNode); ok {
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	}
}
