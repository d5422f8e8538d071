package sheetcalc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// PrintValues writes the computed values of the printable area: one line per
// stored row, columns tab-separated up to the bounding-box width, a newline
// after every row. Unmaterialized cells render as the empty string.
//
// Numbers render in shortest round-trip form (strconv 'g' with precision -1);
// evaluation errors render in display form, e.g. "#ARITHM!".
func (s *Sheet) PrintValues(w io.Writer) error {
	return s.print(w, func(c *Cell) string {
		return FormatValue(c.GetValue())
	})
}

// PrintTexts writes the editor texts of the printable area in the same
// layout as PrintValues.
func (s *Sheet) PrintTexts(w io.Writer) error {
	return s.print(w, (*Cell).GetText)
}

func (s *Sheet) print(w io.Writer, render func(*Cell) string) error {
	bw := bufio.NewWriter(w)
	for _, row := range s.values {
		for col := 0; col < s.width; col++ {
			if col != 0 {
				bw.WriteByte('\t')
			}
			if col >= len(row) || row[col].cell == nil {
				continue
			}
			bw.WriteString(render(row[col].cell))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// FormatValue renders a cell value the way PrintValues does.
func FormatValue(v Value) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case FormulaError:
		return v.Error()
	}
	return fmt.Sprint(v)
}
