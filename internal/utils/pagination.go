// Package utils has the query-parameter helpers shared by handlers and
// services.
package utils

import "strconv"

// IntOr parses s as a base-10 int. Empty or malformed input yields def.
func IntOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// Page is a 1-based listing window.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps number to at least 1 and size into [1, limit]. A size below
// 1 takes def; limit <= 0 disables the upper bound.
func NewPage(number, size, def, limit int) Page {
	p := Page{Number: max(number, 1), Size: size}
	if p.Size < 1 {
		p.Size = max(def, 1)
	}
	if limit > 0 {
		p.Size = min(p.Size, limit)
	}
	return p
}

// Offset is the index of the first row on the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
