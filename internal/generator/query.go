package generator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	wordRE         = regexp.MustCompile(`[\p{L}\p{N}]+`)
	quotedPhraseRE = regexp.MustCompile(`"([^"]+)"|‘([^’]+)’|“([^”]+)”|'([^']+)'`)

	mdTableRow = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	mdSepRow   = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)
)

// stopWords are dropped from queries before matching.
var stopWords = set(
	"the", "a", "an", "and", "or", "of", "to", "in", "is", "are", "for", "on",
	"with", "by", "from", "at", "as", "that", "this", "it", "be", "was", "were",
	"how", "much", "more", "do", "does", "what", "which", "can", "could", "i",
	"we", "you", "my", "our", "your", "me", "us", "please", "there", "about",
)

// genericTerms are long words too common in support questions to act as topics.
var genericTerms = set(
	"question", "questions", "information", "details", "thanks", "hello",
	"would", "should", "please", "tell", "explain", "know", "need", "needs",
	"company", "business", "product", "products", "service", "services",
)

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// simplifyQuery reduces a question to its keywords for a second lookup.
func simplifyQuery(s string) string {
	toks := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(toks) == 0 {
		return ""
	}
	keep := make([]string, 0, len(toks))
	for _, t := range toks {
		if _, stop := stopWords[t]; !stop {
			keep = append(keep, t)
		}
	}
	if len(keep) == 0 {
		return strings.Join(toks, " ")
	}
	return strings.Join(keep, " ")
}

// queryTerms holds the tokens of a query and its entities: quoted phrases,
// numbers, capitalised words and long tokens.
type queryTerms struct {
	tokens   map[string]struct{}
	entities []string
}

func extractQueryTerms(query string) queryTerms {
	q := strings.TrimSpace(query)

	tokens := make(map[string]struct{})
	for _, t := range wordRE.FindAllString(strings.ToLower(q), -1) {
		if _, stop := stopWords[t]; !stop {
			tokens[t] = struct{}{}
		}
	}

	ents := make(map[string]struct{})
	for _, ph := range quotedPhrases(q) {
		ents[ph] = struct{}{}
	}
	for _, raw := range wordRE.FindAllString(q, -1) {
		lc := strings.ToLower(raw)
		if _, stop := stopWords[lc]; stop {
			continue
		}
		if isNumber(raw) || isCapitalized(raw) || len(lc) >= 6 {
			ents[lc] = struct{}{}
		}
	}

	out := queryTerms{tokens: tokens, entities: make([]string, 0, len(ents))}
	for e := range ents {
		out.entities = append(out.entities, e)
	}
	return out
}

func quotedPhrases(q string) []string {
	var out []string
	for _, m := range quotedPhraseRE.FindAllStringSubmatch(q, -1) {
		for _, g := range m[1:] {
			if p := strings.ToLower(strings.TrimSpace(g)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// contentTerms are the topic words of a query: lower-case tokens of five or
// more letters plus long quoted phrases. Capitalised words are qualifiers,
// not topics, and are left to strongEntities.
func contentTerms(query string) []string {
	terms := make(map[string]struct{})
	for _, tok := range wordRE.FindAllString(strings.ToLower(query), -1) {
		if len(tok) < 5 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, generic := genericTerms[tok]; generic {
			continue
		}
		terms[tok] = struct{}{}
	}
	for _, p := range quotedPhrases(query) {
		if len(p) >= 5 {
			terms[p] = struct{}{}
		}
	}
	for _, raw := range wordRE.FindAllString(query, -1) {
		if isCapitalized(raw) {
			delete(terms, strings.ToLower(raw))
		}
	}
	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	return out
}

// strongEntities are the entities a snippet must mention to count as an
// answer: long or numeric entities, runs of capitalised words ("United
// States", "Gen Z") and single proper nouns of four or more letters.
func strongEntities(query string, q queryTerms) map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range q.entities {
		if isNumber(e) || len(e) >= 5 {
			out[e] = struct{}{}
		}
	}

	toks := wordRE.FindAllString(query, -1)
	phrase := func(parts ...string) { out[strings.ToLower(strings.Join(parts, " "))] = struct{}{} }
	for i := 0; i+1 < len(toks); i++ {
		a, b := toks[i], toks[i+1]
		if strings.EqualFold(a, "Gen") && len(b) == 1 && isCapitalized(b) {
			phrase(a, b)
		}
		if isCapitalized(a) && isCapitalized(b) {
			phrase(a, b)
			if i+2 < len(toks) && isCapitalized(toks[i+2]) {
				phrase(a, b, toks[i+2])
			}
		}
	}
	for _, w := range toks {
		lc := strings.ToLower(w)
		if _, stop := stopWords[lc]; !stop && isCapitalized(w) && utf8.RuneCountInString(w) >= 4 {
			out[lc] = struct{}{}
		}
	}
	// A capitalised opening word is sentence case, not a name. Acronyms stay.
	if len(toks) > 0 && isCapitalized(toks[0]) && !isNumber(toks[0]) && strings.ToUpper(toks[0]) != toks[0] {
		delete(out, strings.ToLower(toks[0]))
	}
	return out
}

func entityHits(lower string, entities map[string]struct{}) map[string]struct{} {
	hits := make(map[string]struct{})
	for e := range entities {
		if e != "" && strings.Contains(lower, e) {
			hits[e] = struct{}{}
		}
	}
	return hits
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func isNumber(s string) bool {
	digit := false
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r), r == '.', r == ',', r == '%':
		default:
			return false
		}
	}
	return digit
}

func isCapitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return r != utf8.RuneError && unicode.IsUpper(r)
}

// overlapRelevance is the Jaccard overlap between query and snippet tokens
// plus 0.06 per entity found verbatim (capped at 0.24), clamped to 1.
func overlapRelevance(snippet string, q queryTerms) float64 {
	if len(q.tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(snippet)
	sTokens := make(map[string]struct{})
	for _, t := range wordRE.FindAllString(lower, -1) {
		sTokens[t] = struct{}{}
	}
	inter := 0
	for t := range q.tokens {
		if _, ok := sTokens[t]; ok {
			inter++
		}
	}
	union := len(sTokens) + len(q.tokens) - inter
	if union == 0 {
		return 0
	}
	boost := 0.0
	for _, e := range q.entities {
		if strings.Contains(lower, e) {
			boost += 0.06
		}
	}
	if boost > 0.24 {
		boost = 0.24
	}
	return clamp01(float64(inter)/float64(union) + boost)
}

// stripMarkdownTablesToLines turns markdown tables into one line per body row
// and drops header and separator rows. Other non-empty lines are kept.
func stripMarkdownTablesToLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for i := 0; i < len(lines); {
		line := strings.TrimSpace(lines[i])
		if mdTableRow.MatchString(line) && i+1 < len(lines) && mdSepRow.MatchString(strings.TrimSpace(lines[i+1])) {
			i += 2
			for i < len(lines) && mdTableRow.MatchString(strings.TrimSpace(lines[i])) {
				row := strings.Trim(strings.TrimSpace(lines[i]), "|")
				cells := strings.Split(row, "|")
				for j := range cells {
					cells[j] = strings.TrimSpace(cells[j])
				}
				if joined := strings.TrimSpace(strings.Join(cells, " ")); joined != "" {
					out = append(out, joined)
				}
				i++
			}
			continue
		}
		if line != "" {
			out = append(out, line)
		}
		i++
	}
	return strings.Join(out, "\n")
}

// collapseWhitespaceLines squeezes runs of whitespace and drops blank lines.
func collapseWhitespaceLines(s string) string {
	raw := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, ln := range raw {
		if parts := strings.Fields(ln); len(parts) > 0 {
			out = append(out, strings.Join(parts, " "))
		}
	}
	return strings.Join(out, "\n")
}
