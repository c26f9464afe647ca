// Package services – RouterService
//
// RouterService is the per-turn state machine. A turn moves through
//
//	RECEIVED -> RESOLVE_CONVERSATION -> CHECK_ACTIVE_HANDOVER ->
//	    WAIT_FOR_AGENT | EVALUATE_RULES -> HANDOFF | ASK_CONTACT | CONTINUE
//
// Conversation creation and handover transitions are delegated to the atomic
// repository primitives (FindOrCreateConversation, OpenHandover); the service
// never reads, branches and inserts on its own. Turns of the same
// conversation are serialized with a KeyedMutex.
//
// On CONTINUE the generated answer is fed back into the rule engine (second
// pass). A second-pass HANDOFF opens a handover but the generated text is
// still delivered for this turn; the handover takes effect on the next one.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/generator"
	"github.com/tbourn/support-router/internal/notify"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/resilience"
	"github.com/tbourn/support-router/internal/rules"
)

// TurnStatus is the outcome of one turn.
type TurnStatus string

const (
	StatusOK         TurnStatus = "ok"
	StatusHandoff    TurnStatus = "handoff"
	StatusAskContact TurnStatus = "ask_contact"
	StatusHandedOver TurnStatus = "handed_over"
	StatusError      TurnStatus = "error"
)

// Escalation sources recorded on the escalation counter.
const (
	sourceRules       = "rules"
	sourceSecondPass  = "second_pass"
	sourceAISuggested = "ai_suggested"
	sourceAgent       = "agent"
)

// RuleAISuggested is the rule id stamped on handovers the generator asked for.
const RuleAISuggested = "ai.suggested"

// ModelFallback marks bot messages that carry the static fallback text.
const ModelFallback = "fallback"

// Canned bot texts.
const (
	HandoffNoticeText  = "Thank you. A consultant will take over this conversation and reply here shortly."
	ContactRequestText = "We would be glad to help with that. Please leave your contact details so a consultant can follow up with you."
	HandedOverText     = "A consultant is handling this conversation and will reply here shortly."
)

// AttachmentPlaceholder is stored for attachment-only customer messages.
const AttachmentPlaceholder = "[attachment]"

const (
	defaultHistoryWindow   = 10
	defaultMaxTextRunes    = 4000
	defaultGenerateTimeout = 15 * time.Second
	defaultContactChannel  = "our contact form"
	maxResolveAttempts     = 3
)

// Alerter receives escalation alerts. *notify.Dispatcher implements it.
type Alerter interface {
	Fire(a notify.Alert)
}

// TurnInput is one canonical inbound customer message.
type TurnInput struct {
	CustomerID     string
	CustomerName   string
	Channel        string
	Text           string
	ConversationID string
	HasAttachment  bool
	Hints          rules.Hints
}

// TurnReply is the response body of a turn.
type TurnReply struct {
	ConversationID  string      `json:"conversation_id"`
	MessageID       string      `json:"message_id,omitempty"`
	MessageText     string      `json:"message_text"`
	Timestamp       time.Time   `json:"timestamp"`
	Tags            *rules.Tags `json:"tags,omitempty"`
	Confidence      *float64    `json:"confidence,omitempty"`
	Sources         []string    `json:"sources,omitempty"`
	ShowContactForm bool        `json:"show_contact_form,omitempty"`
	HandoverPending bool        `json:"handover_pending,omitempty"`
}

// TurnResponse is the result of SubmitTurn.
type TurnResponse struct {
	Status   TurnStatus `json:"status"`
	Response TurnReply  `json:"response"`
}

// RouterService orchestrates rule evaluation, generation, persistence and
// notification for customer turns.
type RouterService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Rules decides each turn. *rules.Holder lets the ladder be reloaded.
	Rules rules.Evaluator
	// Generator produces answers on CONTINUE.
	Generator generator.Generator
	// Alerts receives escalation alerts; nil disables them.
	Alerts Alerter
	// Locks serializes turns per conversation.
	Locks *KeyedMutex

	// GenerateTimeout bounds one generator call.
	GenerateTimeout time.Duration
	// HistoryWindow is the number of prior messages passed as history.
	HistoryWindow int
	// MaxTextRunes caps inbound text length.
	MaxTextRunes int
	// ContactChannel is named in apology texts (e.g. an email address).
	ContactChannel string

	now func() time.Time
}

// NewRouterService constructs a RouterService with default limits.
func NewRouterService(db *gorm.DB, ev rules.Evaluator, gen generator.Generator, alerts Alerter) *RouterService {
	return &RouterService{
		DB:              db,
		Rules:           ev,
		Generator:       gen,
		Alerts:          alerts,
		Locks:           NewKeyedMutex(),
		GenerateTimeout: defaultGenerateTimeout,
		HistoryWindow:   defaultHistoryWindow,
		MaxTextRunes:    defaultMaxTextRunes,
		ContactChannel:  defaultContactChannel,
		now:             time.Now,
	}
}

// ApologyText is returned when a turn fails internally.
func (s *RouterService) ApologyText() string {
	return fmt.Sprintf("We're sorry, something went wrong on our side. Please try again shortly or reach us via %s.", s.contactChannel())
}

// FallbackText replaces a failed or timed-out generation.
func (s *RouterService) FallbackText() string {
	return fmt.Sprintf("Sorry, I can't answer that right now. A consultant can help you via %s.", s.contactChannel())
}

func (s *RouterService) contactChannel() string {
	if c := strings.TrimSpace(s.ContactChannel); c != "" {
		return c
	}
	return defaultContactChannel
}

// Validate normalizes a turn in place and checks the required fields.
func (s *RouterService) Validate(in *TurnInput) error {
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Channel = strings.ToLower(strings.TrimSpace(in.Channel))
	in.Text = strings.TrimSpace(in.Text)
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.Channel == "" {
		in.Channel = "web"
	}
	if in.CustomerID == "" {
		return ErrMissingCustomer
	}
	if in.Text == "" && !in.HasAttachment {
		return ErrEmptyMessage
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(in.Text) > s.MaxTextRunes {
		return ErrMessageTooLong
	}
	return nil
}

// SubmitTurn runs one turn. Validation failures are returned as errors with
// no side effects. Every later failure is reported as StatusError with an
// apology text and a nil error, so callers never surface raw errors.
func (s *RouterService) SubmitTurn(ctx context.Context, in TurnInput) (*TurnResponse, error) {
	if err := s.Validate(&in); err != nil {
		return nil, err
	}

	tr := observability.Tracer("services/RouterService")
	ctx, span := tr.Start(ctx, "SubmitTurn",
		trace.WithAttributes(
			attribute.String("customer.id", in.CustomerID),
			attribute.String("channel", in.Channel),
			attribute.Bool("has_attachment", in.HasAttachment),
		),
	)
	defer span.End()

	resp := s.runTurn(ctx, in)
	span.SetAttributes(
		attribute.String("conversation.id", resp.Response.ConversationID),
		attribute.String("status", string(resp.Status)),
	)
	if resp.Status == StatusError {
		span.SetStatus(codes.Error, "turn failed")
	}
	observability.TurnsTotal.WithLabelValues(in.Channel, string(resp.Status)).Inc()
	return resp, nil
}

func (s *RouterService) runTurn(ctx context.Context, in TurnInput) *TurnResponse {
	// RESOLVE_CONVERSATION
	conv, unlock, err := s.acquire(ctx, in)
	if err != nil {
		log.Error().Err(err).Str("customer_id", in.CustomerID).Str("channel", in.Channel).Msg("resolve conversation failed")
		return s.failed("")
	}
	defer unlock()

	stored := in.Text
	if stored == "" {
		stored = AttachmentPlaceholder
	}
	customerMsg, err := repo.CreateMessage(ctx, s.DB, repo.NewMessage{
		ConversationID: conv.ID,
		SenderType:     domain.SenderCustomer,
		SenderName:     in.CustomerName,
		Text:           stored,
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("persist customer message failed")
		return s.failed(conv.ID)
	}

	// CHECK_ACTIVE_HANDOVER
	active, err := repo.HasActiveHandover(ctx, s.DB, conv.ID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("handover lookup failed")
		return s.failed(conv.ID)
	}
	if active {
		if err := repo.TouchConversation(ctx, s.DB, conv.ID, stored); err != nil {
			log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation failed")
		}
		return &TurnResponse{
			Status: StatusHandedOver,
			Response: TurnReply{
				ConversationID: conv.ID,
				MessageID:      customerMsg.ID,
				MessageText:    HandedOverText,
				Timestamp:      customerMsg.CreatedAt,
			},
		}
	}

	// EVALUATE_RULES
	history, err := repo.RecentMessages(ctx, s.DB, conv.ID, s.historyWindow()+1)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("history lookup failed; evaluating without history")
		history = nil
	}
	history = dropMessage(history, customerMsg.ID)

	meta := conv.Metadata.Data()
	mc := rules.MessageContext{
		Text:          in.Text,
		History:       customerTexts(history),
		HasAttachment: in.HasAttachment,
		Hints:         mergeHints(in.Hints, meta.Contact),
	}
	res := s.Rules.Evaluate(mc)

	switch res.Action {
	case rules.ActionHandoff:
		return s.handoff(ctx, conv, in, res)
	case rules.ActionAskContact:
		return s.askContact(ctx, conv, res)
	default:
		return s.continueTurn(ctx, conv, in, mc, history, res)
	}
}

// acquire resolves the conversation, takes its lock and re-reads it under the
// lock. A conversation closed or deleted while the turn waited is dropped and
// resolution starts over without the supplied id.
func (s *RouterService) acquire(ctx context.Context, in TurnInput) (*domain.Conversation, func(), error) {
	for attempt := 1; ; attempt++ {
		conv, err := s.resolve(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		unlock := func() {}
		if s.Locks != nil {
			unlock = s.Locks.Lock(conv.ID)
		}
		fresh, err := repo.GetConversation(ctx, s.DB, conv.ID)
		switch {
		case err == nil && fresh.Status == domain.ConversationActive:
			return fresh, unlock, nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			unlock()
			return nil, nil, err
		}
		unlock()
		if attempt == maxResolveAttempts {
			return nil, nil, fmt.Errorf("conversation %s closed during %d resolve attempts", conv.ID, attempt)
		}
		log.Debug().Str("conversation_id", conv.ID).Msg("conversation closed while waiting; resolving again")
		in.ConversationID = ""
	}
}

// resolve honours a supplied conversation id only when it names an active
// conversation of the same customer and channel; anything else falls back
// to the atomic find-or-create.
func (s *RouterService) resolve(ctx context.Context, in TurnInput) (*domain.Conversation, error) {
	if in.ConversationID != "" {
		c, err := repo.GetConversation(ctx, s.DB, in.ConversationID)
		switch {
		case err == nil && c.Status == domain.ConversationActive && c.CustomerID == in.CustomerID && c.Channel == in.Channel:
			return c, nil
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return nil, err
		}
	}
	c, created, err := repo.FindOrCreateConversation(ctx, s.DB, in.CustomerID, in.CustomerName, in.Channel)
	if err != nil {
		return nil, err
	}
	if created {
		log.Info().Str("conversation_id", c.ID).Str("channel", in.Channel).Msg("conversation opened")
	}
	return c, nil
}

func (s *RouterService) handoff(ctx context.Context, conv *domain.Conversation, in TurnInput, res rules.Result) *TurnResponse {
	meta := stampMeta(conv.Metadata.Data(), res)

	var (
		notice  *domain.Message
		created bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if _, created, err = repo.OpenHandover(ctx, tx, repo.NewHandover{
			ConversationID: conv.ID,
			FromType:       domain.SenderBot,
			ToType:         domain.SenderAgent,
			Reason:         res.Reason,
		}); err != nil {
			return err
		}
		if err := repo.SetHandoverMode(ctx, tx, conv.ID, domain.ModeAISuggested); err != nil {
			return err
		}
		if err := repo.SetConversationMeta(ctx, tx, conv.ID, meta); err != nil {
			return err
		}
		if notice, err = repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: conv.ID,
			SenderType:     domain.SenderBot,
			Text:           HandoffNoticeText,
		}); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, conv.ID, HandoffNoticeText)
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Str("rule_id", res.RuleID).Msg("handoff failed")
		return s.failed(conv.ID)
	}

	if created {
		observability.EscalationsTotal.WithLabelValues(res.RuleID, sourceRules).Inc()
		s.alert(conv, in.Text, res.Reason, res.RuleID, res.Tags)
	}
	log.Info().
		Str("conversation_id", conv.ID).
		Str("rule_id", res.RuleID).
		Str("channel", conv.Channel).
		Bool("created", created).
		Msg("conversation handed off")

	tags := res.Tags
	return &TurnResponse{
		Status: StatusHandoff,
		Response: TurnReply{
			ConversationID: conv.ID,
			MessageID:      notice.ID,
			MessageText:    notice.Text,
			Timestamp:      notice.CreatedAt,
			Tags:           &tags,
		},
	}
}

func (s *RouterService) askContact(ctx context.Context, conv *domain.Conversation, res rules.Result) *TurnResponse {
	meta := stampMeta(conv.Metadata.Data(), res)
	meta.AskContact = true

	var msg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if msg, err = repo.CreateMessage(ctx, tx, repo.NewMessage{
			ConversationID: conv.ID,
			SenderType:     domain.SenderBot,
			Text:           ContactRequestText,
		}); err != nil {
			return err
		}
		if err := repo.SetConversationMeta(ctx, tx, conv.ID, meta); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, conv.ID, ContactRequestText)
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Str("rule_id", res.RuleID).Msg("ask contact failed")
		return s.failed(conv.ID)
	}

	tags := res.Tags
	return &TurnResponse{
		Status: StatusAskContact,
		Response: TurnReply{
			ConversationID:  conv.ID,
			MessageID:       msg.ID,
			MessageText:     msg.Text,
			Timestamp:       msg.CreatedAt,
			Tags:            &tags,
			ShowContactForm: true,
		},
	}
}

func (s *RouterService) continueTurn(ctx context.Context, conv *domain.Conversation, in TurnInput, mc rules.MessageContext, history []domain.Message, first rules.Result) *TurnResponse {
	gen, genErr := s.generate(ctx, conv, in, history, first.Tags.ServiceTag)

	final := first
	reply := TurnReply{ConversationID: conv.ID}
	bot := repo.NewMessage{ConversationID: conv.ID, SenderType: domain.SenderBot}

	var secondPassHandoff bool
	if genErr != nil {
		observability.GeneratorFailuresTotal.WithLabelValues(failureReason(genErr)).Inc()
		log.Warn().Err(genErr).Str("conversation_id", conv.ID).Msg("generation failed; sending fallback")
		bot.Text = s.FallbackText()
		bot.AIModel = ModelFallback
	} else {
		conf := gen.Confidence
		bot.Text = gen.Text
		bot.AIModel = gen.Model
		bot.AIConfidence = &conf
		bot.Sources = gen.Sources
		reply.Confidence = &conf
		reply.Sources = gen.Sources

		// Second pass with the generator's confidence.
		mc.AIConfidence = &conf
		final = s.Rules.Evaluate(mc)
		switch final.Action {
		case rules.ActionHandoff:
			secondPassHandoff = true
		case rules.ActionAskContact:
			reply.ShowContactForm = true
		}
	}

	meta := stampMeta(conv.Metadata.Data(), final)
	if reply.ShowContactForm {
		meta.AskContact = true
	}

	var msg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if msg, err = repo.CreateMessage(ctx, tx, bot); err != nil {
			return err
		}
		if err := repo.SetConversationMeta(ctx, tx, conv.ID, meta); err != nil {
			return err
		}
		return repo.TouchConversation(ctx, tx, conv.ID, bot.Text)
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Msg("persist bot message failed")
		return s.failed(conv.ID)
	}

	if secondPassHandoff {
		if s.escalate(ctx, conv, in.Text, final.Reason, final.RuleID, final.Tags, sourceSecondPass) {
			reply.HandoverPending = true
		}
	}
	if genErr == nil && gen.ShouldHandover {
		reason := strings.TrimSpace(gen.HandoverReason)
		if reason == "" {
			reason = sourceAISuggested
		}
		if s.escalate(ctx, conv, in.Text, reason, RuleAISuggested, final.Tags, sourceAISuggested) {
			reply.HandoverPending = true
		}
	}

	tags := final.Tags
	reply.MessageID = msg.ID
	reply.MessageText = msg.Text
	reply.Timestamp = msg.CreatedAt
	reply.Tags = &tags
	return &TurnResponse{Status: StatusOK, Response: reply}
}

// escalate opens a handover after generation. It reports whether this call
// created it; an already-active handover is left untouched.
func (s *RouterService) escalate(ctx context.Context, conv *domain.Conversation, text, reason, ruleID string, tags rules.Tags, source string) bool {
	_, created, err := repo.OpenHandover(ctx, s.DB, repo.NewHandover{
		ConversationID: conv.ID,
		FromType:       domain.SenderBot,
		ToType:         domain.SenderAgent,
		Reason:         reason,
	})
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conv.ID).Str("source", source).Msg("open handover failed")
		return false
	}
	if !created {
		log.Info().Str("conversation_id", conv.ID).Str("source", source).Msg("handover already active; nothing recorded")
		return false
	}
	if err := repo.SetHandoverMode(ctx, s.DB, conv.ID, domain.ModeAISuggested); err != nil {
		log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("set handover mode failed")
	}
	observability.EscalationsTotal.WithLabelValues(ruleID, source).Inc()
	s.alert(conv, text, reason, ruleID, tags)
	log.Info().
		Str("conversation_id", conv.ID).
		Str("rule_id", ruleID).
		Str("source", source).
		Msg("handover opened after generation")
	return true
}

func (s *RouterService) generate(ctx context.Context, conv *domain.Conversation, in TurnInput, history []domain.Message, serviceTag string) (generator.Result, error) {
	if s.Generator == nil {
		return generator.Result{}, errors.New("services: no generator configured")
	}
	if s.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.GenerateTimeout)
		defer cancel()
	}

	turns := make([]generator.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, generator.Turn{Role: m.SenderType, Text: m.Text})
	}
	res, err := s.Generator.Generate(ctx, generator.Request{
		ConversationID: conv.ID,
		CustomerName:   in.CustomerName,
		Channel:        conv.Channel,
		Text:           in.Text,
		ServiceTag:     serviceTag,
		History:        turns,
	})
	if err != nil {
		return generator.Result{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return generator.Result{}, generator.ErrEmptyAnswer
	}
	return res, nil
}

func (s *RouterService) alert(conv *domain.Conversation, text, reason, ruleID string, tags rules.Tags) {
	if s.Alerts == nil {
		return
	}
	s.Alerts.Fire(notify.Alert{
		ConversationID: conv.ID,
		CustomerName:   conv.CustomerName,
		Channel:        conv.Channel,
		Message:        text,
		Urgency:        string(tags.Urgency),
		ServiceTag:     tags.ServiceTag,
		Reason:         reason,
		RuleID:         ruleID,
		CreatedAt:      s.clock().UTC(),
	})
}

func (s *RouterService) failed(conversationID string) *TurnResponse {
	return &TurnResponse{
		Status: StatusError,
		Response: TurnReply{
			ConversationID: conversationID,
			MessageText:    s.ApologyText(),
			Timestamp:      s.clock().UTC(),
		},
	}
}

func (s *RouterService) historyWindow() int {
	if s.HistoryWindow > 0 {
		return s.HistoryWindow
	}
	return defaultHistoryWindow
}

func (s *RouterService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// stampMeta copies the decision tags onto the conversation metadata. A result
// without a service tag keeps the previously detected one.
func stampMeta(meta domain.ConversationMeta, res rules.Result) domain.ConversationMeta {
	if res.Tags.ServiceTag != "" {
		meta.ServiceTag = res.Tags.ServiceTag
	}
	meta.EscalationReason = res.Reason
	meta.ReasonCategory = res.Tags.ReasonCategory
	meta.Urgency = string(res.Tags.Urgency)
	meta.RuleID = res.RuleID
	return meta
}

// mergeHints prefers hints sent with the turn over stored contact details.
// Once the customer is reachable the stored details are left out, so the
// lead rules that ask for contact stop firing on them.
func mergeHints(h rules.Hints, c *domain.ContactInfo) rules.Hints {
	if c == nil || c.Reachable() {
		return h
	}
	if strings.TrimSpace(h.CompanyName) == "" {
		h.CompanyName = c.Company
	}
	if strings.TrimSpace(h.TargetMarket) == "" {
		h.TargetMarket = c.TargetMarket
	}
	if strings.TrimSpace(h.Product) == "" {
		h.Product = c.Product
	}
	return h
}

func customerTexts(ms []domain.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		if m.SenderType == domain.SenderCustomer && strings.TrimSpace(m.Text) != "" {
			out = append(out, m.Text)
		}
	}
	return out
}

func dropMessage(ms []domain.Message, id string) []domain.Message {
	out := ms[:0:0]
	for _, m := range ms {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, generator.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, generator.ErrEmptyAnswer):
		return "empty"
	default:
		return "error"
	}
}
