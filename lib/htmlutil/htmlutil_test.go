package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const fixture = `
<html><body>
<table class="profile-table">
  <tr><td>Registration Number:</td><td> RA2211003010999 </td></tr>
  <tr><td>Batch:</td><td>2</td></tr>
</table>
<table>
  <tr><th>Course Code</th><th>Course Title</th><th>Slot</th></tr>
  <tr><td>21CSC201J</td><td>Data   Structures</td><td>A</td></tr>
  <tr><td>21MAB201T</td><td>Transforms</td><td>C</td></tr>
</table>
</body></html>`

func parse(t *testing.T, src string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	require.NoError(t, err)
	return doc
}

func TestCellAfterLabel(t *testing.T) {
	doc := parse(t, fixture)
	require.Equal(t, "RA2211003010999", CellAfterLabel(doc, "Registration Number"))
	require.Equal(t, "2", CellAfterLabel(doc, "Batch"))
	require.Equal(t, "", CellAfterLabel(doc, "No Such Label"))
}

func TestTablesContaining(t *testing.T) {
	doc := parse(t, fixture)
	require.Len(t, TablesContaining(doc, "Course Code"), 1)
	require.Len(t, TablesContaining(doc, "Registration Number"), 1)
	require.Empty(t, TablesContaining(doc, "Test Performance"))
}

func TestHeaderIndex(t *testing.T) {
	doc := parse(t, fixture)
	table := TablesContaining(doc, "Course Code")[0]

	idx := NewHeaderIndex(table)
	require.Equal(t, 0, idx.Column("Course Code"))
	require.Equal(t, 1, idx.Column("Course Title"))
	require.Equal(t, 2, idx.Column("Slot"))
	require.Equal(t, -1, idx.Column("Room"))
	require.Equal(t, 3, idx.Len())
}

func TestHeaderIndexReorderedColumns(t *testing.T) {
	doc := parse(t, `<table>
		<tr><th>Slot</th><th>Course Code</th><th>Course Title</th></tr>
		<tr><td>A</td><td>21CSC201J</td><td>DSA</td></tr>
	</table>`)
	table := doc.Find("table")

	idx := NewHeaderIndex(table)
	require.Equal(t, 1, idx.Column("Course Code"))
	require.Equal(t, 0, idx.Column("Slot"))
}

func TestDataRowsAndCells(t *testing.T) {
	doc := parse(t, fixture)
	table := TablesContaining(doc, "Course Code")[0]

	rows := DataRows(table)
	require.Len(t, rows, 2)

	cells := Cells(rows[0])
	require.Equal(t, []string{"21CSC201J", "Data Structures", "A"}, cells)
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b", CleanText("  a \n\n b\t"))
	require.Equal(t, "", CleanText(" \n\t "))
}
