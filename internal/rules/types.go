// Package rules implements the routing rule engine: a pure, deterministic
// mapping from a MessageContext to a Result.
//
// The ladder is an ordered list of Rule values evaluated by a single fold;
// the first rule that matches decides the action, reason and rule id. Tiers
// are declared in priority order (compliance, attachment, sales, lead,
// confidence) and a default AI_CONTINUE result closes the ladder. The service
// tag is detected independently and attached to every result.
//
// The engine performs no I/O and holds no mutable state, so one *Engine may be
// shared by any number of goroutines.
package rules

// Action is the routing decision for a turn.
type Action string

const (
	ActionContinue   Action = "AI_CONTINUE"
	ActionAskContact Action = "ASK_CONTACT"
	ActionHandoff    Action = "HANDOFF_TO_ADMIN"
)

// Severity orders actions: AI_CONTINUE < ASK_CONTACT < HANDOFF_TO_ADMIN.
func (a Action) Severity() int {
	switch a {
	case ActionHandoff:
		return 2
	case ActionAskContact:
		return 1
	default:
		return 0
	}
}

// Tier groups rules of equal priority.
type Tier string

const (
	TierCompliance Tier = "compliance"
	TierAttachment Tier = "attachment"
	TierSales      Tier = "sales"
	TierLead       Tier = "lead"
	TierConfidence Tier = "confidence"
	TierDefault    Tier = "default"
)

// Urgency tells operators how quickly an escalation needs attention.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func (u Urgency) valid() bool {
	return u == UrgencyLow || u == UrgencyMedium || u == UrgencyHigh
}

// Hints are structured lead details the customer already gave us.
type Hints struct {
	CompanyName  string `json:"company_name,omitempty"`
	TargetMarket string `json:"target_market,omitempty"`
	Product      string `json:"product,omitempty"`
}

// MessageContext is the input of one evaluation. AIConfidence is set only on
// the post-generation re-check.
type MessageContext struct {
	Text          string
	History       []string
	AIConfidence  *float64
	HasAttachment bool
	Hints         Hints
}

// Tags are attached to every result and stamped onto conversation metadata.
type Tags struct {
	ServiceTag     string  `json:"service_tag,omitempty"`
	ReasonCategory string  `json:"reason_category"`
	Urgency        Urgency `json:"urgency"`
}

// Result is the decision for one MessageContext.
type Result struct {
	Action Action `json:"action"`
	Reason string `json:"reason"`
	RuleID string `json:"rule_id"`
	Tier   Tier   `json:"tier"`
	Tags   Tags   `json:"tags"`
}

// Evaluator is implemented by *Engine and *Holder.
type Evaluator interface {
	Evaluate(MessageContext) Result
}
