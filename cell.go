package sheetcalc

// Value is a computed cell value.
// types:
//   - string: text cell display values (empty cells yield "")
//   - float64: formula results
//   - FormulaError: failed formula results
type Value any

type cellKind uint8

const (
	cellEmpty cellKind = iota
	cellText
	cellFormula
)

// Cell holds the content of one sheet slot: empty, literal text, or a formula
// with a memoized result. The enclosing sheet owns every cell and is the only
// writer; the sheet back-reference exists solely so formula evaluation can
// read peer cells.
type Cell struct {
	sheet   *Sheet
	kind    cellKind
	text    string // raw text as entered, leading quote included
	display string // text with a leading quote stripped
	formula *Formula
	cached  Value // memoized formula result; nil while dirty
}

func newCell(sheet *Sheet) *Cell {
	return &Cell{sheet: sheet}
}

// set installs new content. Classification, in order: empty text makes an
// empty cell; a leading quote makes a literal text cell with the quote
// stripped from the display value; a lone "=" is literal text; a leading "="
// parses the rest as a formula; anything else is text.
//
// verify runs after a formula parses but before it is installed; if it fails,
// the cell is left exactly as it was.
func (c *Cell) set(text string, verify func(*Formula) error) error {
	switch {
	case text == "":
		c.kind = cellEmpty
		c.text, c.display = "", ""
		c.formula, c.cached = nil, nil
	case text[0] == '\'':
		c.kind = cellText
		c.text, c.display = text, text[1:]
		c.formula, c.cached = nil, nil
	case text == "=":
		c.kind = cellText
		c.text, c.display = "=", "="
		c.formula, c.cached = nil, nil
	case text[0] == '=':
		formula, err := ParseFormula(text[1:])
		if err != nil {
			return err
		}
		if verify != nil {
			if err := verify(formula); err != nil {
				return err
			}
		}
		c.kind = cellFormula
		c.text, c.display = "", ""
		c.formula, c.cached = formula, nil
	default:
		c.kind = cellText
		c.text, c.display = text, text
		c.formula, c.cached = nil, nil
	}
	return nil
}

// clear resets the cell to empty.
func (c *Cell) clear() {
	_ = c.set("", nil)
}

// GetValue returns the cell's computed value: "" for empty cells, the display
// value for text cells, and the evaluation result for formula cells. A
// formula evaluates on first call and memoizes; the sheet drops the memo
// whenever any transitive input may have changed.
func (c *Cell) GetValue() Value {
	switch c.kind {
	case cellText:
		return c.display
	case cellFormula:
		if c.cached == nil {
			num, err := c.formula.Evaluate(c.sheet)
			if err != nil {
				c.cached = AsFormulaError(err)
			} else {
				c.cached = num
			}
		}
		return c.cached
	}
	return ""
}

// GetText returns the text as a cell editor would show it: "" for empty
// cells, the raw entered text for text cells (leading quote included), and
// "=" plus the canonical expression for formula cells.
func (c *Cell) GetText() string {
	switch c.kind {
	case cellText:
		return c.text
	case cellFormula:
		return "=" + c.formula.GetExpression()
	}
	return ""
}

// GetReferencedCells returns the formula's reference list, sorted row-major
// and deduplicated; nil for non-formula cells.
func (c *Cell) GetReferencedCells() []Position {
	if c.kind != cellFormula {
		return nil
	}
	return c.formula.GetReferencedCells()
}

// ClearCache drops a populated formula memo and reports whether it did.
// A false return lets invalidation walks prune: if this cell held no cached
// value, none of its dependents can hold one either.
func (c *Cell) ClearCache() bool {
	if c.kind == cellFormula && c.cached != nil {
		c.cached = nil
		return true
	}
	return false
}

// HasValue reports whether a formula cell currently holds a memoized result.
func (c *Cell) HasValue() bool {
	return c.kind == cellFormula && c.cached != nil
}
