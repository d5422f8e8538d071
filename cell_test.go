package sheetcalc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCell(t *testing.T, s *Sheet, ref, text string) {
	t.Helper()
	require.NoError(t, s.SetCell(mustPos(t, ref), text))
}

func getCell(t *testing.T, s *Sheet, ref string) *Cell {
	t.Helper()
	cell, err := s.GetCell(mustPos(t, ref))
	require.NoError(t, err)
	require.NotNil(t, cell, "cell %s not materialized", ref)
	return cell
}

func TestCellClassification(t *testing.T) {
	sheet := NewSheet()

	setCell(t, sheet, "A1", "")
	empty := getCell(t, sheet, "A1")
	assert.Equal(t, "", empty.GetText())
	assert.Equal(t, "", empty.GetValue())

	setCell(t, sheet, "A2", "hello")
	text := getCell(t, sheet, "A2")
	assert.Equal(t, "hello", text.GetText())
	assert.Equal(t, "hello", text.GetValue())

	setCell(t, sheet, "A3", "'=5")
	quoted := getCell(t, sheet, "A3")
	assert.Equal(t, "'=5", quoted.GetText())
	assert.Equal(t, "=5", quoted.GetValue())

	setCell(t, sheet, "A4", "=")
	lone := getCell(t, sheet, "A4")
	assert.Equal(t, "=", lone.GetText())
	assert.Equal(t, "=", lone.GetValue())

	setCell(t, sheet, "A5", "=1+2")
	formula := getCell(t, sheet, "A5")
	assert.Equal(t, "=1 + 2", formula.GetText())
	assert.Equal(t, 3.0, formula.GetValue())
}

func TestCellQuoteStrippedOnlyOnce(t *testing.T) {
	sheet := NewSheet()
	setCell(t, sheet, "A1", "''double")
	cell := getCell(t, sheet, "A1")
	assert.Equal(t, "''double", cell.GetText())
	assert.Equal(t, "'double", cell.GetValue())
}

func TestCellReferencedCells(t *testing.T) {
	sheet := NewSheet()
	setCell(t, sheet, "A1", "=B1+C1")
	assert.Equal(t, []Position{mustPos(t, "B1"), mustPos(t, "C1")},
		getCell(t, sheet, "A1").GetReferencedCells())

	setCell(t, sheet, "A2", "plain")
	assert.Empty(t, getCell(t, sheet, "A2").GetReferencedCells())
}

func TestCellCacheLifecycle(t *testing.T) {
	sheet := NewSheet()
	setCell(t, sheet, "A1", "=1+1")
	cell := getCell(t, sheet, "A1")

	// Dirty until the first read.
	assert.False(t, cell.HasValue())
	assert.False(t, cell.ClearCache())

	assert.Equal(t, 2.0, cell.GetValue())
	assert.True(t, cell.HasValue())

	// Clean → Dirty exactly once.
	assert.True(t, cell.ClearCache())
	assert.False(t, cell.ClearCache())
	assert.False(t, cell.HasValue())

	// Errors memoize like numbers.
	setCell(t, sheet, "A2", "=1/0")
	errCell := getCell(t, sheet, "A2")
	assert.Equal(t, FormulaError{ErrorKindDiv0}, errCell.GetValue())
	assert.True(t, errCell.HasValue())
	assert.True(t, errCell.ClearCache())
}

func TestCellCacheNoopForNonFormulas(t *testing.T) {
	sheet := NewSheet()
	setCell(t, sheet, "A1", "text")
	cell := getCell(t, sheet, "A1")
	assert.False(t, cell.HasValue())
	assert.False(t, cell.ClearCache())
}

func TestCellGetValueIdempotent(t *testing.T) {
	sheet := NewSheet()
	setCell(t, sheet, "A1", "3")
	setCell(t, sheet, "A2", "=A1*A1")
	cell := getCell(t, sheet, "A2")
	assert.Equal(t, cell.GetValue(), cell.GetValue())
}
