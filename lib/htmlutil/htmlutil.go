// Package htmlutil is a small typed query layer over goquery documents.
// The extraction strategies are expressed against these helpers instead
// of ad hoc tree walking so they stay independently testable.
package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText trims a scraped string down to a single-spaced printable form.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.Trim(s, " \t\n")
	return innerWhitespace.ReplaceAllString(s, " ")
}

// CellAfterLabel finds the first <td> whose text contains `label` and
// returns the cleaned text of the cell that follows it in the same row.
// Returns "" when no such pair exists.
func CellAfterLabel(doc *goquery.Document, label string) string {
	out := ""
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if !strings.Contains(td.Text(), label) {
			return true
		}
		next := td.Next()
		if next.Length() == 0 {
			return true
		}
		text := CleanText(next.Text())
		if text == "" {
			return true
		}
		out = text
		return false
	})
	return out
}

// TablesContaining returns every <table> whose rendered text contains
// the keyword. The portal renders several near-identical tables per
// page, so callers usually iterate all of them.
func TablesContaining(doc *goquery.Document, keyword string) []*goquery.Selection {
	var tables []*goquery.Selection
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if strings.Contains(table.Text(), keyword) {
			tables = append(tables, table)
		}
	})
	return tables
}

// HeaderIndex maps each header-cell text of the table's first row to
// its column position. Matching is substring-based via Column, since
// the portal renames headers slightly between terms.
type HeaderIndex struct {
	headers []string
}

func NewHeaderIndex(table *goquery.Selection) HeaderIndex {
	var headers []string
	table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, CleanText(cell.Text()))
	})
	return HeaderIndex{headers: headers}
}

// Column returns the index of the first header containing `name`,
// or -1 when absent.
func (h HeaderIndex) Column(name string) int {
	for i, header := range h.headers {
		if strings.Contains(header, name) {
			return i
		}
	}
	return -1
}

func (h HeaderIndex) Len() int {
	return len(h.headers)
}

// DataRows returns the non-header rows of a table.
func DataRows(table *goquery.Selection) []*goquery.Selection {
	var rows []*goquery.Selection
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		rows = append(rows, row)
	})
	return rows
}

// Cells returns the cleaned text of each <td> in a row.
func Cells(row *goquery.Selection) []string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, CleanText(cell.Text()))
	})
	return cells
}
