package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/services"
)

// ---- stubs for the service contracts; nil funcs return zero values ----

type stubTurns struct {
	fn func(ctx context.Context, in services.TurnInput) (*services.TurnResponse, error)
}

func (s stubTurns) SubmitTurn(ctx context.Context, in services.TurnInput) (*services.TurnResponse, error) {
	if s.fn == nil {
		return &services.TurnResponse{Status: services.StatusOK}, nil
	}
	return s.fn(ctx, in)
}

type stubConvs struct {
	get     func(ctx context.Context, id string) (*domain.Conversation, error)
	list    func(ctx context.Context, f services.ListFilter, page, size int) ([]domain.Conversation, int64, error)
	history func(ctx context.Context, id, cursor string, limit int) (*repo.MessagePage, error)
	contact func(ctx context.Context, id, customerID string, in domain.ContactInfo) (*domain.Conversation, error)
	reply   func(ctx context.Context, id, agent, text string) (*domain.Message, bool, error)
	close   func(ctx context.Context, id string) error
	del     func(ctx context.Context, id string) error
}

func (s stubConvs) Get(ctx context.Context, id string) (*domain.Conversation, error) {
	if s.get == nil {
		return &domain.Conversation{ID: id}, nil
	}
	return s.get(ctx, id)
}

func (s stubConvs) List(ctx context.Context, f services.ListFilter, page, size int) ([]domain.Conversation, int64, error) {
	if s.list == nil {
		return nil, 0, nil
	}
	return s.list(ctx, f, page, size)
}

func (s stubConvs) History(ctx context.Context, id, cursor string, limit int) (*repo.MessagePage, error) {
	if s.history == nil {
		return &repo.MessagePage{}, nil
	}
	return s.history(ctx, id, cursor, limit)
}

func (s stubConvs) SubmitContact(ctx context.Context, id, customerID string, in domain.ContactInfo) (*domain.Conversation, error) {
	if s.contact == nil {
		return &domain.Conversation{ID: id, CustomerID: customerID}, nil
	}
	return s.contact(ctx, id, customerID, in)
}

func (s stubConvs) AgentReply(ctx context.Context, id, agent, text string) (*domain.Message, bool, error) {
	if s.reply == nil {
		return &domain.Message{ID: "m1", ConversationID: id, SenderType: domain.SenderAgent, SenderName: agent, Text: text}, true, nil
	}
	return s.reply(ctx, id, agent, text)
}

func (s stubConvs) Close(ctx context.Context, id string) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx, id)
}

func (s stubConvs) Delete(ctx context.Context, id string) error {
	if s.del == nil {
		return nil
	}
	return s.del(ctx, id)
}

type stubHandovers struct {
	takeover func(ctx context.Context, id, agent string) (*domain.HandoverRecord, bool, error)
	release  func(ctx context.Context, id string) (bool, error)
	history  func(ctx context.Context, id string) ([]domain.HandoverRecord, error)
}

func (s stubHandovers) Takeover(ctx context.Context, id, agent string) (*domain.HandoverRecord, bool, error) {
	if s.takeover == nil {
		return &domain.HandoverRecord{ID: "h1", ConversationID: id, AgentName: agent, Status: domain.HandoverActive}, true, nil
	}
	return s.takeover(ctx, id, agent)
}

func (s stubHandovers) Release(ctx context.Context, id string) (bool, error) {
	if s.release == nil {
		return true, nil
	}
	return s.release(ctx, id)
}

func (s stubHandovers) History(ctx context.Context, id string) ([]domain.HandoverRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history(ctx, id)
}

type stubFBSvc struct {
	fn func(ctx context.Context, customerID, messageID string, value int) error
}

func (s stubFBSvc) Leave(ctx context.Context, customerID, messageID string, value int) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, customerID, messageID, value)
}

// ---- helpers ----

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
	return v
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}
