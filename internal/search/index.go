// Package search is the knowledge index behind the retrieval generator.
//
// The knowledge base is a Markdown file. Each paragraph becomes a passage
// tagged with the heading it sits under, and queries are ranked by Jaccard
// similarity between case-folded word sets: |Q ∩ P| / |Q ∪ P|. A Knowledge
// value never changes after it is built and may be shared between goroutines.
package search

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// DefaultTopK is used when TopK is asked for k <= 0.
const DefaultTopK = 3

// Result is one ranked passage. Source is the heading of the section the
// passage belongs to, or "" for text above the first heading.
type Result struct {
	Snippet string
	Source  string
	Score   float64
}

// Index ranks passages for a query.
type Index interface {
	TopK(query string, k int) []Result
}

// Option tunes how passages are admitted and tokenized.
type Option func(*options)

type options struct {
	minRunes int
	stop     map[string]struct{}
	maxDocs  int
}

func newOptions(opts []Option) options {
	o := options{minRunes: 40}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithMinParagraphRunes drops passages shorter than n runes. Zero keeps
// everything; negative values are ignored.
func WithMinParagraphRunes(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.minRunes = n
		}
	}
}

// WithStopwords removes the given words from queries and passages.
func WithStopwords(words []string) Option {
	return func(o *options) {
		if len(words) == 0 {
			return
		}
		fold := cases.Fold()
		o.stop = make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = strings.TrimSpace(fold.String(w)); w != "" {
				o.stop[w] = struct{}{}
			}
		}
	}
}

// WithMaxDocs keeps at most the first n admitted passages. n <= 0 means no cap.
func WithMaxDocs(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDocs = n
		}
	}
}

type passage struct {
	text    string
	section string
	terms   []string // sorted, unique
	runes   int
}

// Knowledge is an in-memory passage index.
type Knowledge struct {
	opts     options
	passages []passage
}

var _ Index = (*Knowledge)(nil)

// NewIndexFromMarkdown indexes the Markdown file at path. Table rows are
// flattened into standalone facts first.
func NewIndexFromMarkdown(path string, opts ...Option) (*Knowledge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge: %w", err)
	}
	flat, err := FlattenTables(raw)
	if err != nil {
		return nil, fmt.Errorf("flatten tables: %w", err)
	}
	return NewIndexFromReader(bytes.NewReader(flat), opts...)
}

// NewIndexFromReader consumes r and indexes it as Markdown.
func NewIndexFromReader(r io.Reader, opts ...Option) (*Knowledge, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read knowledge: %w", err)
	}
	return build(string(src), newOptions(opts)), nil
}

// NewIndexFromStrings indexes paragraphs in order. A paragraph may open with
// a heading line, which then applies to the paragraphs that follow.
func NewIndexFromStrings(paragraphs []string, opts ...Option) *Knowledge {
	return build(strings.Join(paragraphs, "\n\n"), newOptions(opts))
}

func build(src string, o options) *Knowledge {
	k := &Knowledge{opts: o}
	for _, b := range splitSections(src) {
		if o.maxDocs > 0 && len(k.passages) == o.maxDocs {
			break
		}
		n := utf8.RuneCountInString(b.text)
		if n < o.minRunes {
			continue
		}
		terms := o.terms(b.text, cases.Fold())
		if len(terms) == 0 {
			continue
		}
		k.passages = append(k.passages, passage{text: b.text, section: b.section, terms: terms, runes: n})
	}
	return k
}

// Len reports how many passages were admitted.
func (k *Knowledge) Len() int {
	if k == nil {
		return 0
	}
	return len(k.passages)
}

// TopK returns up to k passages sharing at least one term with query, best
// first. Equal scores prefer the shorter passage, then the earlier one.
func (k *Knowledge) TopK(query string, n int) []Result {
	if k.Len() == 0 {
		return nil
	}
	q := k.opts.terms(query, cases.Fold())
	if len(q) == 0 {
		return nil
	}
	if n <= 0 {
		n = DefaultTopK
	}

	type hit struct {
		p     *passage
		score float64
	}
	var hits []hit
	for i := range k.passages {
		p := &k.passages[i]
		shared := intersect(q, p.terms)
		if shared == 0 {
			continue
		}
		hits = append(hits, hit{p: p, score: float64(shared) / float64(len(q)+len(p.terms)-shared)})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].p.runes < hits[b].p.runes
	})

	out := make([]Result, min(n, len(hits)))
	for i := range out {
		out[i] = Result{Snippet: hits[i].p.text, Source: hits[i].p.section, Score: hits[i].score}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// terms folds s and returns its distinct words in sorted order.
func (o options) terms(s string, fold cases.Caser) []string {
	words := wordRE.FindAllString(fold.String(s), -1)
	slices.Sort(words)
	words = slices.Compact(words)
	if o.stop != nil {
		words = slices.DeleteFunc(words, func(w string) bool {
			_, drop := o.stop[w]
			return drop
		})
	}
	return words
}

// intersect counts the words two sorted sets share.
func intersect(a, b []string) int {
	var n, i, j int
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case 0:
			n++
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}
	return n
}

type block struct {
	section string
	text    string
}

// splitSections walks src line by line. Blank lines end a paragraph and a
// heading line ends it and names the section for what follows.
func splitSections(src string) []block {
	var (
		out     []block
		section string
		lines   []string
	)
	flush := func() {
		if len(lines) > 0 {
			out = append(out, block{section: section, text: strings.Join(lines, " ")})
			lines = lines[:0]
		}
	}
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if title, ok := heading(line); ok {
			flush()
			if title != "" {
				section = title
			}
			continue
		}
		lines = append(lines, strings.Join(strings.Fields(line), " "))
	}
	flush()
	return out
}

// heading reports whether line is an ATX heading and returns its title.
func heading(line string) (string, bool) {
	rest := strings.TrimLeft(line, "#")
	level := len(line) - len(rest)
	if level == 0 || level > 6 {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "#")), true
}
