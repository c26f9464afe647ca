package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Engine evaluates the ladder. It is immutable after construction.
type Engine struct {
	rules      []Rule
	tags       []serviceTag
	thresholds Thresholds
}

type serviceTag struct {
	name string
	re   *regexp.Regexp
}

// Default returns the engine with the built-in ladder and thresholds.
func Default() *Engine {
	e, err := NewEngine(FileConfig{})
	if err != nil {
		// The built-in configuration is static; failing here is a programming error.
		panic(err)
	}
	return e
}

// NewEngine builds an engine from the built-in ladder with cfg applied on top.
func NewEngine(cfg FileConfig) (*Engine, error) {
	th := DefaultThresholds
	if cfg.Thresholds != nil {
		th = *cfg.Thresholds
	}
	if th.Handoff < 0 || th.AskContact > 1 || th.Handoff > th.AskContact {
		return nil, fmt.Errorf("rules: thresholds must satisfy 0 <= handoff <= ask_contact <= 1, got %.2f / %.2f", th.Handoff, th.AskContact)
	}

	base := DefaultRules(th)
	known := make(map[string]int, len(base))
	for i, r := range base {
		known[r.ID] = i
	}
	disabled := make(map[string]bool)
	for id, ov := range cfg.Rules {
		if id == DefaultRuleID {
			return nil, fmt.Errorf("rules: the %q rule cannot be overridden", DefaultRuleID)
		}
		i, ok := known[id]
		if !ok {
			return nil, fmt.Errorf("rules: unknown rule %q", id)
		}
		if ov.Disabled {
			disabled[id] = true
			continue
		}
		if len(ov.Patterns) > 0 {
			res, err := compileAll(foldPatterns(ov.Patterns))
			if err != nil {
				return nil, fmt.Errorf("rules: rule %q: %w", id, err)
			}
			base[i].Patterns = res
		}
		if ov.Urgency != "" {
			u := Urgency(strings.ToLower(ov.Urgency))
			if !u.valid() {
				return nil, fmt.Errorf("rules: rule %q: invalid urgency %q", id, ov.Urgency)
			}
			base[i].Urgency = u
		}
		if ov.Reason != "" {
			base[i].Reason = ov.Reason
		}
	}

	e := &Engine{thresholds: th}
	for _, r := range base {
		if !disabled[r.ID] {
			e.rules = append(e.rules, r)
		}
	}

	tags, err := buildServiceTags(cfg.ServiceTags)
	if err != nil {
		return nil, err
	}
	e.tags = tags
	return e, nil
}

// Evaluate runs the ladder over ctx. It is pure: equal inputs give equal results.
func (e *Engine) Evaluate(ctx MessageContext) Result {
	in := NewInput(ctx)
	tag := e.ServiceTag(in)
	for _, r := range e.rules {
		if r.Match(in) {
			return r.Result(tag)
		}
	}
	return defaultResult.Result(tag)
}

// ServiceTag detects the service domain from the current text, falling back
// to the most recent history entry that names one.
func (e *Engine) ServiceTag(in Input) string {
	if t := e.matchTag(in.Text); t != "" {
		return t
	}
	for i := len(in.History) - 1; i >= 0; i-- {
		if t := e.matchTag(in.History[i]); t != "" {
			return t
		}
	}
	return ""
}

// Rules returns a copy of the active ladder, in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule returns the active rule with the given id.
func (e *Engine) Rule(id string) (Rule, bool) {
	for _, r := range e.rules {
		if r.ID == id {
			return r, true
		}
	}
	return Rule{}, false
}

// Thresholds returns the confidence cut-offs in use.
func (e *Engine) Thresholds() Thresholds { return e.thresholds }

func (e *Engine) matchTag(text string) string {
	if text == "" {
		return ""
	}
	for _, t := range e.tags {
		if t.re.MatchString(text) {
			return t.name
		}
	}
	return ""
}

func buildServiceTags(overrides map[string][]string) ([]serviceTag, error) {
	defs := make([]serviceTagDef, 0, len(defaultServiceTags)+len(overrides))
	seen := make(map[string]bool, len(defaultServiceTags))
	for _, d := range defaultServiceTags {
		if kw, ok := overrides[d.Name]; ok {
			d.Keywords = kw
		}
		defs = append(defs, d)
		seen[d.Name] = true
	}
	extra := make([]string, 0, len(overrides))
	for name := range overrides {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		defs = append(defs, serviceTagDef{Name: name, Keywords: overrides[name]})
	}

	// Keywords are folded the same way NewInput folds the text they match.
	fold := cases.Fold()
	out := make([]serviceTag, 0, len(defs))
	for _, d := range defs {
		if len(d.Keywords) == 0 {
			continue
		}
		alts := make([]string, 0, len(d.Keywords))
		for _, k := range d.Keywords {
			if k = normalize(fold.String(k)); k != "" {
				alts = append(alts, regexp.QuoteMeta(k))
			}
		}
		if len(alts) == 0 {
			continue
		}
		re, err := regexp.Compile(`(^|\W)(` + strings.Join(alts, "|") + `)($|\W)`)
		if err != nil {
			return nil, fmt.Errorf("rules: service tag %q: %w", d.Name, err)
		}
		out = append(out, serviceTag{name: d.Name, re: re})
	}
	return out, nil
}

// foldPatterns makes override patterns case-insensitive, matching the folded input.
func foldPatterns(exprs []string) []string {
	out := make([]string, len(exprs))
	for i, e := range exprs {
		if strings.HasPrefix(e, "(?i)") {
			out[i] = e
			continue
		}
		out[i] = "(?i)" + e
	}
	return out
}
