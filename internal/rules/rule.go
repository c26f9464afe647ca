package rules

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// Input is a MessageContext prepared for matching: the current text and the
// history are case-folded and whitespace-collapsed once per evaluation.
type Input struct {
	Text    string
	History []string
	Ctx     MessageContext
}

// NewInput folds ctx for matching.
func NewInput(ctx MessageContext) Input {
	// A Caser is stateful; one per evaluation keeps the engine goroutine-safe.
	fold := cases.Fold()
	in := Input{Text: normalize(fold.String(ctx.Text)), Ctx: ctx}
	if len(ctx.History) > 0 {
		in.History = make([]string, len(ctx.History))
		for i, h := range ctx.History {
			in.History[i] = normalize(fold.String(h))
		}
	}
	return in
}

// Rule is one rung of the ladder. It matches when When reports true or any
// of Patterns matches the folded current text.
type Rule struct {
	ID       string
	Tier     Tier
	Action   Action
	Reason   string
	Category string
	Urgency  Urgency
	Patterns []*regexp.Regexp
	When     func(Input) bool
}

// Match reports whether the rule fires for in.
func (r Rule) Match(in Input) bool {
	if r.When != nil && r.When(in) {
		return true
	}
	for _, p := range r.Patterns {
		if p.MatchString(in.Text) {
			return true
		}
	}
	return false
}

// Result builds the decision this rule produces.
func (r Rule) Result(serviceTag string) Result {
	return Result{
		Action: r.Action,
		Reason: r.Reason,
		RuleID: r.ID,
		Tier:   r.Tier,
		Tags: Tags{
			ServiceTag:     serviceTag,
			ReasonCategory: r.Category,
			Urgency:        r.Urgency,
		},
	}
}

func compileAll(exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		re, err := regexp.Compile(e)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out, err := compileAll(exprs)
	if err != nil {
		panic(err)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
