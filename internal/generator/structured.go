package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// systemPrompt instructs LLM backends to answer in the structured envelope
// parsed by parseStructured.
const systemPrompt = `You are a customer-support assistant for a regulatory consulting firm.
Answer the customer's latest message using the conversation so far. Do not give
case-specific legal advice, guarantees, or prices.
Reply with a single JSON object and nothing else:
{"answer": string, "confidence": number between 0 and 1,
 "should_handover": boolean, "handover_reason": string, "sources": [string]}
Set should_handover when a human consultant must take over.`

type structuredAnswer struct {
	Answer         string   `json:"answer"`
	Confidence     *float64 `json:"confidence"`
	ShouldHandover bool     `json:"should_handover"`
	HandoverReason string   `json:"handover_reason"`
	Sources        []string `json:"sources"`
}

// unknownConfidence is reported when a backend omits its confidence. It sits
// in the ask-contact band of the default thresholds.
const unknownConfidence = 0.6

// parseStructured decodes a model reply. Code fences are tolerated. A reply
// that is not JSON is taken as plain answer text with unknownConfidence.
func parseStructured(raw, model string) (Result, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if body == "" {
		return Result{}, ErrEmptyAnswer
	}

	var a structuredAnswer
	if !strings.HasPrefix(body, "{") {
		return Result{Text: body, Confidence: unknownConfidence, Model: model}, nil
	}
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Result{}, fmt.Errorf("generator: decode %s reply: %w", model, err)
	}
	if strings.TrimSpace(a.Answer) == "" {
		return Result{}, ErrEmptyAnswer
	}
	conf := unknownConfidence
	if a.Confidence != nil {
		conf = clamp01(*a.Confidence)
	}
	out := Result{
		Text:           strings.TrimSpace(a.Answer),
		Confidence:     conf,
		Model:          model,
		ShouldHandover: a.ShouldHandover,
		HandoverReason: strings.TrimSpace(a.HandoverReason),
	}
	for _, s := range a.Sources {
		out.Sources = appendSource(out.Sources, s)
	}
	if out.ShouldHandover && out.HandoverReason == "" {
		out.HandoverReason = "assistant suggested a human consultant"
	}
	return out, nil
}

// userPrompt renders the request context that precedes the customer text.
func userPrompt(req Request) string {
	var b strings.Builder
	if req.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", req.CustomerName)
	}
	if req.Channel != "" {
		fmt.Fprintf(&b, "Channel: %s\n", req.Channel)
	}
	if req.ServiceTag != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.ServiceTag)
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(req.Text)
	return b.String()
}
