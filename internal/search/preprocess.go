package search

import (
	"bufio"
	"bytes"
	"strings"
)

// FlattenTables rewrites Markdown table rows into standalone sentences so each
// row can be retrieved on its own. A row under a header becomes
// "Header: cell; Header: cell". Separator rows are dropped and every row is
// emitted as its own paragraph. Lines outside tables are copied unchanged, so
// headings and paragraph breaks survive.
func FlattenTables(src []byte) ([]byte, error) {
	var (
		out     bytes.Buffer
		header  []string
		inTable bool
	)
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for sc.Scan() {
		raw := sc.Text()
		line := strings.TrimSpace(raw)

		if !isTableRow(line) {
			if inTable {
				out.WriteByte('\n')
			}
			inTable, header = false, nil
			out.WriteString(raw)
			out.WriteByte('\n')
			continue
		}

		cells := splitRow(line)
		if isSeparatorRow(cells) {
			continue
		}
		if !inTable {
			// First row of a table is its header.
			inTable = true
			header = cells
			out.WriteByte('\n')
			continue
		}
		if fact := rowFact(header, cells); fact != "" {
			out.WriteString(fact)
			out.WriteString("\n\n")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func isTableRow(line string) bool {
	return len(line) > 1 && strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|")
}

func splitRow(line string) []string {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, ":- ") != "" {
			return false
		}
	}
	return true
}

func rowFact(header, cells []string) string {
	parts := make([]string, 0, len(cells))
	for i, c := range cells {
		if c == "" {
			continue
		}
		if i < len(header) && header[i] != "" {
			parts = append(parts, header[i]+": "+c)
			continue
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, "; ")
}
