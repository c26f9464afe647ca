package rules

import "strings"

// Thresholds are the confidence cut-offs of the post-generation check.
// Confidence below Handoff escalates; below AskContact asks for contact details.
type Thresholds struct {
	Handoff    float64 `yaml:"handoff"`
	AskContact float64 `yaml:"ask_contact"`
}

// DefaultThresholds are 0.5 / 0.7.
var DefaultThresholds = Thresholds{Handoff: 0.5, AskContact: 0.7}

// ReasonLowConfidence is recorded on handovers opened by the second pass.
const ReasonLowConfidence = "confidence too low after generation"

// DefaultRuleID identifies the closing AI_CONTINUE result.
const DefaultRuleID = "default"

// defaultResult closes the ladder.
var defaultResult = Rule{
	ID:       DefaultRuleID,
	Tier:     TierDefault,
	Action:   ActionContinue,
	Reason:   "no escalation rule matched",
	Category: "general",
	Urgency:  UrgencyLow,
}

// DefaultRules returns the built-in ladder in priority order.
func DefaultRules(th Thresholds) []Rule {
	return []Rule{
		// Compliance risk.
		{
			ID: "compliance.case_specific", Tier: TierCompliance, Action: ActionHandoff,
			Reason: "case-specific regulatory question", Category: "compliance_risk", Urgency: UrgencyHigh,
			Patterns: mustCompileAll(
				`\b(does|do|will|would|can|should|is|are)\s+(my|our)\b.{0,80}\b(need|needs|require|requires|required|qualify|qualifies|must)\b`,
				`\b(my|our)\s+(specific\s+)?(product|products|item|items|formula|formulation|device|facility|factory|ingredient|ingredients)\b.{0,60}\b(registration|register|registered|licen[cs]e|certificat\w*|approv\w*|permit|complian\w*|allowed|legal)\b`,
				`\b(is it|would it be)\s+(legal|allowed|permitted)\s+(for|to)\s+(me|us)\b`,
			),
		},
		{
			ID: "compliance.guarantee", Tier: TierCompliance, Action: ActionHandoff,
			Reason: "outcome guarantee requested", Category: "compliance_risk", Urgency: UrgencyHigh,
			Patterns: mustCompileAll(
				`\bguarantee\w*\b`,
				`\b(promise|ensure|assure|make sure)\b.{0,40}\b(approv\w*|pass\w*|clear\w*|accept\w*|succeed\w*|success)\b`,
				`\b100\s*%\s*(sure|certain|success|approv\w*)\b`,
			),
		},
		{
			ID: "compliance.prior_violation", Tier: TierCompliance, Action: ActionHandoff,
			Reason: "prior violation or rejection disclosed", Category: "compliance_risk", Urgency: UrgencyHigh,
			Patterns: mustCompileAll(
				`\b(warning letter|import alert|refusal|refused|rejected|rejection|detained|detention|seized|seizure|recalled)\b`,
				`\b(product|fda|voluntary|class [i]+)\s+recall\b`,
				`\bviolat\w*\b`,
				`\bform\s*483\b`,
			),
		},
		{
			ID: "compliance.legal_citation", Tier: TierCompliance, Action: ActionHandoff,
			Reason: "legal citation interpretation requested", Category: "compliance_risk", Urgency: UrgencyMedium,
			Patterns: mustCompileAll(
				`\b\d+\s*cfr\b`,
				`\bcfr\s*(part\s*)?\d+`,
				`§\s*\d+`,
				`\b(section|article|part)\s+\d+[a-z]?(\.\d+)*\s+(of|in)\b`,
				`\b(fd&c act|fsma|mocra|dshea)\b`,
			),
		},
		{
			ID: "compliance.pricing", Tier: TierCompliance, Action: ActionHandoff,
			Reason: "pricing or quote requested", Category: "pricing", Urgency: UrgencyMedium,
			Patterns: mustCompileAll(
				`\b(price|prices|pricing|cost|costs|fee|fees|quote|quotation|invoice|budget|rates?)\b`,
				`\bhow much\s+(does|do|is|are|will|would|should|for|to)\b`,
			),
		},

		// Attachment present, independent of text.
		{
			ID: "attachment.present", Tier: TierAttachment, Action: ActionHandoff,
			Reason: "customer sent an attachment", Category: "attachment", Urgency: UrgencyHigh,
			When: func(in Input) bool { return in.Ctx.HasAttachment },
		},

		// Sales intent.
		{
			ID: "sales.service_inquiry", Tier: TierSales, Action: ActionAskContact,
			Reason: "service inquiry", Category: "sales_intent", Urgency: UrgencyMedium,
			Patterns: mustCompileAll(
				`\b(what|which)\s+(kind of\s+|kinds of\s+|type of\s+|types of\s+)?services?\b`,
				`\bservices?\s+(do|does|can)\s+you\b`,
				`\b(do|can|could)\s+you\s+(help|assist|handle|offer|provide|support)\b`,
			),
		},
		{
			ID: "sales.ready_to_proceed", Tier: TierSales, Action: ActionAskContact,
			Reason: "customer ready to proceed", Category: "sales_intent", Urgency: UrgencyHigh,
			Patterns: mustCompileAll(
				`\b(ready to|want to|would like to|i'?d like to|let'?s)\s+(proceed|start|begin|get started|sign|move forward|engage|hire|work with you)\b`,
				`\bsign\s+up\b`,
				`\bnext steps?\b`,
			),
		},
		{
			ID: "sales.timeline", Tier: TierSales, Action: ActionAskContact,
			Reason: "timeline question", Category: "sales_intent", Urgency: UrgencyMedium,
			Patterns: mustCompileAll(
				`\bhow\s+(long|soon|quickly|fast)\b`,
				`\b(timeline|timeframe|turnaround|lead time|processing time)\b`,
			),
		},
		{
			ID: "sales.competitor", Tier: TierSales, Action: ActionAskContact,
			Reason: "competitor comparison", Category: "sales_intent", Urgency: UrgencyMedium,
			Patterns: mustCompileAll(
				`\bcompetitors?\b`,
				`\b(compared?\s+(to|with)|versus|vs\.?|better than|different from)\b`,
				`\bother\s+(agents|agencies|consultants|consultancies|firms|companies|providers)\b`,
			),
		},

		// Lead quality.
		{
			ID: "lead.company", Tier: TierLead, Action: ActionAskContact,
			Reason: "company name disclosed", Category: "lead_quality", Urgency: UrgencyLow,
			When:   func(in Input) bool { return strings.TrimSpace(in.Ctx.Hints.CompanyName) != "" },
			Patterns: mustCompileAll(
				`\b(our|my)\s+(company|firm|brand|business)(\s+name)?\s+(is|called|named)\b`,
				`\b(i|we)\s+(work|am|are)\s+(at|with|from)\s+[a-z0-9&]+\s+(inc|llc|ltd|corp|co|gmbh|limited)\b`,
				`\b[a-z0-9&]+\s+(inc|llc|ltd|corp|gmbh|co\.?,?\s*ltd)\.?(\s|$)`,
			),
		},
		{
			ID: "lead.target_market", Tier: TierLead, Action: ActionAskContact,
			Reason: "target export market named", Category: "lead_quality", Urgency: UrgencyLow,
			When:   func(in Input) bool { return strings.TrimSpace(in.Ctx.Hints.TargetMarket) != "" },
			Patterns: mustCompileAll(
				`\b(export\w*|sell\w*|ship\w*|distribut\w*|launch\w*|enter\w*|import\w*)\b.{0,40}\b(to|in|into)\s+(the\s+)?(usa|united states|america|eu|europe|european union|uk|united kingdom|japan|china|canada|korea|taiwan|australia)\b`,
				`\b(u\.s\.|usa|american|eu|european|uk|japanese|chinese|canadian|korean)\s+market\b`,
			),
		},
		{
			ID: "lead.product", Tier: TierLead, Action: ActionAskContact,
			Reason: "product described", Category: "lead_quality", Urgency: UrgencyLow,
			When:   func(in Input) bool { return strings.TrimSpace(in.Ctx.Hints.Product) != "" },
			Patterns: mustCompileAll(
				`\b(our|my)\s+(product|products|item|items|formula|product line)\s+(is|are|include\w*|contain\w*|called)\b`,
				`\bwe\s+(make|manufacture|produce|sell|develop)\b`,
			),
		},

		// Post-generation confidence.
		{
			ID: "confidence.low", Tier: TierConfidence, Action: ActionHandoff,
			Reason: ReasonLowConfidence, Category: "low_confidence", Urgency: UrgencyMedium,
			When: func(in Input) bool {
				return in.Ctx.AIConfidence != nil && *in.Ctx.AIConfidence < th.Handoff
			},
		},
		{
			ID: "confidence.medium", Tier: TierConfidence, Action: ActionAskContact,
			Reason: "confidence moderate after generation", Category: "low_confidence", Urgency: UrgencyLow,
			When: func(in Input) bool {
				return in.Ctx.AIConfidence != nil && *in.Ctx.AIConfidence < th.AskContact
			},
		},
	}
}

// serviceTagDef classifies messages into a regulatory/service domain.
type serviceTagDef struct {
	Name     string
	Keywords []string
}

// defaultServiceTags are tried in order; more specific domains come first.
var defaultServiceTags = []serviceTagDef{
	{Name: "drug", Keywords: []string{"drug", "drugs", "medicine", "medicines", "pharmaceutical", "otc", "ndc", "api ingredient"}},
	{Name: "medical_device", Keywords: []string{"medical device", "medical devices", "510k", "510(k)", "device listing", "udi", "class ii", "class i"}},
	{Name: "cosmetics", Keywords: []string{"cosmetic", "cosmetics", "skincare", "skin care", "makeup", "shampoo", "lotion", "mocra"}},
	{Name: "dietary_supplement", Keywords: []string{"supplement", "supplements", "dietary supplement", "vitamin", "vitamins", "capsule", "capsules", "dshea"}},
	{Name: "food", Keywords: []string{"food", "foods", "beverage", "beverages", "snack", "snacks", "fce", "sid", "fsma", "food facility", "nutrition label"}},
}
