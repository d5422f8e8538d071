package sheetcalc

import "fmt"

// cellSlot is one coordinate's storage: the cell itself (nil until the
// coordinate materializes) and the positions of formula cells whose
// expressions reference this coordinate. Back-edges are data owned by the
// slot, not references to cells.
type cellSlot struct {
	cell         *Cell
	referencedBy map[Position]struct{}
}

// Sheet is a sparse, row-major grid of cells plus the dependency graph
// between formula cells and their referents. The graph is always a DAG:
// edits that would close a cycle are rejected and leave the sheet unchanged.
//
// The engine is single-threaded: SetCell and ClearCell assume they hold the
// sole mutable view of the sheet for the duration of the call.
type Sheet struct {
	values [][]cellSlot

	// Printable bounding box bookkeeping: width is the maximum row length,
	// maxWidthRows counts the rows of exactly that length. Keeping the count
	// lets ClearCell skip the full rescan until the last widest row shrinks.
	width        int
	maxWidthRows int
}

// NewSheet creates an empty sheet.
func NewSheet() *Sheet {
	return &Sheet{}
}

// SetCell installs text at pos, rewires the dependency edges of the cell's
// old and new referents, and invalidates the memoized values of every cell
// that transitively depends on pos.
//
// The edit is transactional: on any error (invalid position, malformed
// formula, would-be cycle) the sheet is left exactly as it was.
func (s *Sheet) SetCell(pos Position, text string) error {
	if !pos.IsValid() {
		return fmt.Errorf("set cell: %w", ErrInvalidPosition)
	}

	for len(s.values) <= pos.Row {
		s.values = append(s.values, nil)
	}
	if pos.Col >= len(s.values[pos.Row]) {
		row := s.values[pos.Row]
		for len(row) <= pos.Col {
			row = append(row, cellSlot{})
		}
		s.values[pos.Row] = row
		if newLen := pos.Col + 1; newLen == s.width {
			s.maxWidthRows++
		} else if newLen > s.width {
			s.width = newLen
			s.maxWidthRows = 1
		}
	}

	created := false
	if s.values[pos.Row][pos.Col].cell == nil {
		s.values[pos.Row][pos.Col].cell = newCell(s)
		created = true
	}
	cell := s.values[pos.Row][pos.Col].cell

	// Old edges must survive until set succeeds: a rejected formula leaves
	// the graph untouched.
	oldRefs := cell.GetReferencedCells()
	err := cell.set(text, func(f *Formula) error {
		return s.checkCircular(pos, f.GetReferencedCells())
	})
	if err != nil {
		if created {
			s.dropSlot(pos)
		}
		return fmt.Errorf("set cell %s: %w", pos, err)
	}

	for _, q := range oldRefs {
		slot := &s.values[q.Row][q.Col]
		delete(slot.referencedBy, pos)
		if len(slot.referencedBy) == 0 {
			slot.referencedBy = nil
		}
	}

	for _, q := range cell.GetReferencedCells() {
		existing, _ := s.GetCell(q)
		if existing == nil {
			// Auto-materialize the referent as an empty cell. The recursive
			// call may regrow the backing slices, so slots are re-indexed
			// afterwards rather than held across it.
			if err := s.SetCell(q, ""); err != nil {
				return err
			}
		}
		slot := &s.values[q.Row][q.Col]
		if slot.referencedBy == nil {
			slot.referencedBy = make(map[Position]struct{})
		}
		slot.referencedBy[pos] = struct{}{}
	}

	s.invalidateDependents(pos)
	return nil
}

// GetCell returns the cell at pos, or nil if the coordinate never
// materialized. Only invalid positions are an error.
func (s *Sheet) GetCell(pos Position) (*Cell, error) {
	if !pos.IsValid() {
		return nil, fmt.Errorf("get cell: %w", ErrInvalidPosition)
	}
	if pos.Row >= len(s.values) || pos.Col >= len(s.values[pos.Row]) {
		return nil, nil
	}
	return s.values[pos.Row][pos.Col].cell, nil
}

// ClearCell removes the cell at pos. A cell that other formulas still
// reference is emptied but kept alive; otherwise the slot is dropped and the
// printable bounding box shrinks to fit.
func (s *Sheet) ClearCell(pos Position) error {
	if !pos.IsValid() {
		return fmt.Errorf("clear cell: %w", ErrInvalidPosition)
	}
	if pos.Row >= len(s.values) || pos.Col >= len(s.values[pos.Row]) {
		return nil
	}
	slot := &s.values[pos.Row][pos.Col]
	if slot.cell == nil {
		return nil
	}

	// Detach outgoing edges and invalidate dependents before the content
	// goes away; their memoized values were computed from it.
	for _, q := range slot.cell.GetReferencedCells() {
		ref := &s.values[q.Row][q.Col]
		delete(ref.referencedBy, pos)
		if len(ref.referencedBy) == 0 {
			ref.referencedBy = nil
		}
	}
	s.invalidateDependents(pos)

	if len(slot.referencedBy) > 0 {
		slot.cell.clear()
		return nil
	}
	s.dropSlot(pos)
	return nil
}

// GetPrintableSize returns the bounding box of all materialized cells.
func (s *Sheet) GetPrintableSize() Size {
	return Size{Width: s.width, Height: len(s.values)}
}

// checkCircular rejects a proposed formula at pos whose references would
// close a cycle. Every cell that transitively depends on pos is forbidden:
// DFS from pos over back-references, failing when it lands on a referent.
// Relies on the graph being a DAG before the edit.
func (s *Sheet) checkCircular(pos Position, refs []Position) error {
	if len(refs) == 0 {
		return nil
	}
	referenced := make(map[Position]struct{}, len(refs))
	for _, q := range refs {
		referenced[q] = struct{}{}
	}

	visited := make(map[Position]struct{})
	stack := []Position{pos}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited[current] = struct{}{}

		if _, ok := referenced[current]; ok {
			return ErrCircularDependency
		}
		for q := range s.backReferences(current) {
			if _, ok := visited[q]; !ok {
				stack = append(stack, q)
			}
		}
	}
	return nil
}

// invalidateDependents pushes a cache-invalidation wave along reverse edges
// from pos. A cell whose memo was already absent cannot have supplied a value
// to any dependent's memo, so the wave prunes there.
func (s *Sheet) invalidateDependents(pos Position) {
	var queue []Position
	for q := range s.backReferences(pos) {
		queue = append(queue, q)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if s.values[current.Row][current.Col].cell.ClearCache() {
			for q := range s.backReferences(current) {
				queue = append(queue, q)
			}
		}
	}
}

// backReferences returns the positions of formula cells referencing pos.
// The returned map is the slot's own set; callers only read it.
func (s *Sheet) backReferences(pos Position) map[Position]struct{} {
	if pos.Row >= len(s.values) || pos.Col >= len(s.values[pos.Row]) {
		return nil
	}
	return s.values[pos.Row][pos.Col].referencedBy
}

// dropSlot destroys the cell at pos and shrinks storage: trailing dead slots
// leave the row, a row emptied at the bottom edge takes trailing empty rows
// with it, and the bounding-box fields are recomputed when the last widest
// row shrinks.
func (s *Sheet) dropSlot(pos Position) {
	s.values[pos.Row][pos.Col].cell = nil
	row := s.values[pos.Row]
	if pos.Col+1 < len(row) {
		return
	}

	oldLen := len(row)
	newLen := oldLen - 1
	for newLen > 0 && row[newLen-1].cell == nil {
		newLen--
	}
	s.values[pos.Row] = row[:newLen]

	if newLen == 0 && pos.Row+1 == len(s.values) {
		rows := len(s.values) - 1
		for rows > 0 && len(s.values[rows-1]) == 0 {
			rows--
		}
		s.values = s.values[:rows]
	}

	if oldLen != s.width {
		return
	}
	s.maxWidthRows--
	if s.maxWidthRows > 0 {
		return
	}
	width, count := 0, 0
	for _, r := range s.values {
		switch {
		case len(r) < width:
		case len(r) == width:
			count++
		default:
			width, count = len(r), 1
		}
	}
	s.width, s.maxWidthRows = width, count
}
