// Package generator defines the ResponseGenerator port used by the router and
// its implementations: a retrieval generator over the local knowledge index,
// a Gemini generator, and a generator for OpenAI-compatible chat APIs.
//
// Every implementation reports a confidence in [0,1]. The router feeds that
// value back into the rule engine for the post-generation check, so a backend
// that cannot estimate confidence must report a conservative value rather
// than 1.
package generator

import (
	"context"
	"errors"
)

// Roles used in Turn.Role.
const (
	RoleCustomer = "customer"
	RoleBot      = "bot"
	RoleAgent    = "agent"
)

// ErrEmptyAnswer is returned when a backend answers with no usable text.
var ErrEmptyAnswer = errors.New("generator: empty answer")

// Turn is one prior utterance passed as history.
type Turn struct {
	Role string
	Text string
}

// Request is everything a generator needs to answer one customer message.
type Request struct {
	ConversationID string
	CustomerName   string
	Channel        string
	Text           string
	ServiceTag     string
	History        []Turn // oldest first, excluding Text
}

// Result is a generated answer.
type Result struct {
	Text           string
	Confidence     float64
	Sources        []string
	Model          string
	ShouldHandover bool
	HandoverReason string
}

// Generator produces assistant replies.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (Result, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
