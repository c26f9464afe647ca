package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbourn/support-router/internal/search"
)

// Backend names accepted by New.
const (
	BackendRetrieval = "retrieval"
	BackendGemini    = "gemini"
	BackendOpenAI    = "openai"
)

// Options selects and configures a backend.
type Options struct {
	Backend   string
	Model     string
	APIKey    string
	BaseURL   string
	Index     search.Index // retrieval only
	Threshold float64      // retrieval only
}

// New builds the generator named by opts.Backend.
func New(ctx context.Context, opts Options) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendRetrieval:
		return NewRetrieval(opts.Index, opts.Threshold), nil
	case BackendGemini:
		return NewGemini(ctx, opts.APIKey, opts.Model)
	case BackendOpenAI:
		return NewOpenAI(opts.BaseURL, opts.APIKey, opts.Model)
	default:
		return nil, fmt.Errorf("generator: unknown backend %q", opts.Backend)
	}
}
