// Package services – HandoverService
//
// HandoverService implements the operator side of the handover lifecycle:
// takeover (a named agent owns the conversation) and release (automation
// resumes). Both go through the atomic repository primitives, so the
// at-most-one-active-handover invariant holds however calls interleave with
// escalating turns.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/observability"
	"github.com/tbourn/support-router/internal/repo"
)

// RuleAgentTakeover is the rule id recorded for operator takeovers.
const RuleAgentTakeover = "agent.takeover"

// HandoverService exposes takeover and release.
type HandoverService struct {
	DB *gorm.DB
	// Locks, when shared with RouterService, keeps operator actions from
	// interleaving with a running turn of the same conversation.
	Locks *KeyedMutex
}

// Takeover ensures an active handover to an agent exists. It is idempotent:
// when a handover is already active it is returned unchanged with
// created=false. The conversation is switched to manual mode either way.
func (s *HandoverService) Takeover(ctx context.Context, conversationID, agentName string) (*domain.HandoverRecord, bool, error) {
	tr := observability.Tracer("services/HandoverService")
	ctx, span := tr.Start(ctx, "Takeover",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()
	if conv.Status != domain.ConversationActive {
		return nil, false, ErrConversationClosed
	}
	return takeover(ctx, s.DB, conv, agentName)
}

// Release closes the active handover, if any, and resumes automated routing.
// released is false when no handover was active.
func (s *HandoverService) Release(ctx context.Context, conversationID string) (bool, error) {
	tr := observability.Tracer("services/HandoverService")
	ctx, span := tr.Start(ctx, "Release",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	conv, unlock, err := lockConversation(ctx, s.DB, s.Locks, conversationID)
	if err != nil {
		return false, err
	}
	defer unlock()

	released, err := repo.ReleaseHandover(ctx, s.DB, conv.ID)
	if err != nil {
		return false, err
	}
	if err := repo.SetHandoverMode(ctx, s.DB, conv.ID, domain.ModeAuto); err != nil {
		return released, err
	}
	log.Info().Str("conversation_id", conv.ID).Bool("released", released).Msg("handover released")
	return released, nil
}

// Active returns the active handover of a conversation, or nil.
func (s *HandoverService) Active(ctx context.Context, conversationID string) (*domain.HandoverRecord, error) {
	if _, err := getConversation(ctx, s.DB, conversationID); err != nil {
		return nil, err
	}
	h, err := repo.GetActiveHandover(ctx, s.DB, conversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return h, err
}

// History lists every handover of a conversation, oldest first.
func (s *HandoverService) History(ctx context.Context, conversationID string) ([]domain.HandoverRecord, error) {
	if _, err := getConversation(ctx, s.DB, conversationID); err != nil {
		return nil, err
	}
	return repo.ListHandovers(ctx, s.DB, conversationID)
}

func takeover(ctx context.Context, db *gorm.DB, conv *domain.Conversation, agentName string) (*domain.HandoverRecord, bool, error) {
	agentName = strings.TrimSpace(agentName)
	h, created, err := repo.OpenHandover(ctx, db, repo.NewHandover{
		ConversationID: conv.ID,
		FromType:       domain.SenderBot,
		ToType:         domain.SenderAgent,
		AgentName:      agentName,
		Reason:         "taken over by " + orDefault(agentName, "an agent"),
	})
	if err != nil {
		return nil, false, err
	}
	if err := repo.SetHandoverMode(ctx, db, conv.ID, domain.ModeManual); err != nil {
		return h, created, err
	}
	if created {
		observability.EscalationsTotal.WithLabelValues(RuleAgentTakeover, sourceAgent).Inc()
		log.Info().Str("conversation_id", conv.ID).Str("agent", agentName).Msg("conversation taken over")
	}
	return h, created, nil
}

func getConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, db, strings.TrimSpace(id))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return c, err
}

// lockConversation takes the conversation lock and loads the row while
// holding it, so the caller sees whatever the previous holder wrote.
func lockConversation(ctx context.Context, db *gorm.DB, locks *KeyedMutex, id string) (*domain.Conversation, func(), error) {
	id = strings.TrimSpace(id)
	unlock := func() {}
	if locks != nil {
		unlock = locks.Lock(id)
	}
	c, err := getConversation(ctx, db, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return c, unlock, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
