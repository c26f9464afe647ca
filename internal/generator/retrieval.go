package generator

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/search"
)

// ModelRetrieval is reported as Result.Model by the retrieval generator.
const ModelRetrieval = "retrieval"

// DeclineText is answered when the knowledge base has nothing relevant.
const DeclineText = "I can't answer that from the provided data."

const (
	retrievalCandidates = 10
	defaultThreshold    = 0.20
	strictFloor         = 0.20 // overlap needed when the single strong entity is missing
	lenientFloor        = 0.10 // overlap below which very short snippets are dropped
	secondSnippetRatio  = 0.9
	coverageBonus       = 0.03
)

// Retrieval answers from the local knowledge index. It never suggests a
// handover itself; a decline reports confidence 0 and lets the rule engine
// decide.
type Retrieval struct {
	Index         search.Index
	Threshold     float64 // minimum raw index score of the top snippet
	MaxReplyRunes int
}

// NewRetrieval returns a retrieval generator over idx.
func NewRetrieval(idx search.Index, threshold float64) *Retrieval {
	return &Retrieval{Index: idx, Threshold: threshold}
}

type candidate struct {
	text     string
	source   string
	score    float64
	combined float64
	hits     map[string]struct{}
}

// Generate implements Generator.
func (g *Retrieval) Generate(ctx context.Context, req Request) (Result, error) {
	_, span := observability.Tracer("generator/Retrieval").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("service.tag", req.ServiceTag),
		),
	)
	defer span.End()

	decline := Result{Text: DeclineText, Confidence: 0, Model: ModelRetrieval}
	if g.Index == nil {
		return decline, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	query := strings.TrimSpace(req.Text)
	results := g.Index.TopK(query, retrievalCandidates)
	if len(results) == 0 {
		if simplified := simplifyQuery(query); simplified != "" && simplified != query {
			results = g.Index.TopK(simplified, retrievalCandidates)
		}
	}
	cands := rank(query, results)
	if len(cands) == 0 {
		span.SetAttributes(attribute.Bool("retrieval.declined", true))
		return decline, nil
	}

	top := cands[0]
	thr := g.Threshold
	if thr <= 0 {
		thr = defaultThreshold
	}
	if top.score < thr {
		span.SetAttributes(attribute.Bool("retrieval.declined", true))
		return decline, nil
	}

	text := top.text
	sources := appendSource(nil, top.source)
	if len(cands) > 1 && cands[1].combined >= top.combined*secondSnippetRatio && covers(cands[1].hits, top.hits) {
		text += "\n" + cands[1].text
		sources = appendSource(sources, cands[1].source)
	}
	text = collapseWhitespaceLines(text)
	if g.MaxReplyRunes > 0 && utf8.RuneCountInString(text) > g.MaxReplyRunes {
		text = string([]rune(text)[:g.MaxReplyRunes])
	}

	conf := clamp01(top.combined)
	span.SetAttributes(attribute.Float64("retrieval.confidence", conf))
	return Result{Text: text, Confidence: conf, Sources: sources, Model: ModelRetrieval}, nil
}

// rank applies the precision gates to the index results and orders the
// survivors by blended score (half normalised index score, half overlap).
//
// Gates: when the query has content terms at least one must appear; with two
// or more strong entities two must appear; with exactly one it must appear
// unless overlap is high.
func rank(query string, results []search.Result) []candidate {
	if len(results) == 0 {
		return nil
	}
	q := extractQueryTerms(query)
	content := contentTerms(query)
	strong := strongEntities(query, q)

	required := len(strong)
	if required > 2 {
		required = 2
	}

	maxScore := 0.0
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	if maxScore == 0 {
		maxScore = 1
	}

	out := make([]candidate, 0, len(results))
	for _, r := range results {
		clean := stripMarkdownTablesToLines(strings.TrimSpace(r.Snippet))
		if clean == "" {
			continue
		}
		lower := strings.ToLower(clean)
		if len(content) > 0 && !containsAny(lower, content) {
			continue
		}

		ov := overlapRelevance(clean, q)
		hits := entityHits(lower, strong)
		switch required {
		case 2:
			if len(hits) < 2 {
				continue
			}
		case 1:
			if len(hits) < 1 && ov < strictFloor {
				continue
			}
		default:
			if ov < lenientFloor && utf8.RuneCountInString(clean) < 12 {
				continue
			}
		}

		combined := 0.5*(r.Score/maxScore) + 0.5*ov
		if len(hits) > required {
			combined += coverageBonus
		}
		out = append(out, candidate{
			text:     clean,
			source:   r.Source,
			score:    r.Score,
			combined: combined,
			hits:     hits,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].combined > out[j].combined })
	return out
}

func covers(have, want map[string]struct{}) bool {
	for e := range want {
		if _, ok := have[e]; !ok {
			return false
		}
	}
	return true
}

func appendSource(list []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return list
	}
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}
