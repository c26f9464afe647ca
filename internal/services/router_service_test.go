package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tbourn/support-router/internal/domain"
	"github.com/tbourn/support-router/internal/generator"
	"github.com/tbourn/support-router/internal/notify"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/rules"
)

// ----- Fakes -----

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerts) Fire(a notify.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerts) All() []notify.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Alert(nil), r.alerts...)
}

// scriptedGenerator answers every request with the same result and records
// the requests it saw.
type scriptedGenerator struct {
	mu     sync.Mutex
	res    generator.Result
	err    error
	calls  int
	lastRq generator.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req generator.Request) (generator.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastRq = req
	return g.res, g.err
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func answer(text string, conf float64) *scriptedGenerator {
	return &scriptedGenerator{res: generator.Result{
		Text:       text,
		Confidence: conf,
		Sources:    []string{"Labeling"},
		Model:      "test-model",
	}}
}

func newRouter(t *testing.T, gen generator.Generator) (*RouterService, *gorm.DB, *recordingAlerts) {
	t.Helper()
	db := newTestDB(t)
	alerts := &recordingAlerts{}
	svc := NewRouterService(db, rules.Default(), gen, alerts)
	svc.ContactChannel = "support@example.com"
	return svc, db, alerts
}

func countActiveHandovers(t *testing.T, db *gorm.DB, convID string) int64 {
	t.Helper()
	var n int64
	q := db.Model(&domain.HandoverRecord{}).Where("status = ?", domain.HandoverActive)
	if convID != "" {
		q = q.Where("conversation_id = ?", convID)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func submit(t *testing.T, svc *RouterService, in TurnInput) *TurnResponse {
	t.Helper()
	resp, err := svc.SubmitTurn(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

// ----- Tests -----

func TestSubmitTurn_ContinueDeliversGeneratedAnswer(t *testing.T) {
	gen := answer("Labels must list ingredients.", 0.9)
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", CustomerName: "Ann", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, "Labels must list ingredients.", resp.Response.MessageText)
	require.NotNil(t, resp.Response.Confidence)
	require.InDelta(t, 0.9, *resp.Response.Confidence, 1e-9)
	require.Equal(t, []string{"Labeling"}, resp.Response.Sources)
	require.False(t, resp.Response.ShowContactForm)
	require.False(t, resp.Response.HandoverPending)
	require.Equal(t, rules.DefaultRuleID, mustConversation(t, db, resp).Metadata.Data().RuleID)

	msgs, err := repo.RecentMessages(context.Background(), db, resp.Response.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, domain.SenderCustomer, msgs[0].SenderType)
	bot := msgs[1]
	require.Equal(t, domain.SenderBot, bot.SenderType)
	require.Equal(t, resp.Response.MessageID, bot.ID)
	require.Equal(t, "test-model", bot.AIModel)
	require.NotNil(t, bot.AIConfidence)
	require.Equal(t, []string{"Labeling"}, []string(bot.SourcesUsed))

	require.Zero(t, countActiveHandovers(t, db, ""))
	require.Empty(t, alerts.All())
	require.Equal(t, 1, gen.Calls())
}

func TestSubmitTurn_ComplianceHandoff(t *testing.T) {
	gen := answer("unused", 0.9)
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", CustomerName: "Ann", Text: "Does my specific product need registration?"})
	require.Equal(t, StatusHandoff, resp.Status)
	require.Equal(t, HandoffNoticeText, resp.Response.MessageText)
	require.NotNil(t, resp.Response.Tags)
	require.Zero(t, gen.Calls(), "generator must not run on a rules handoff")

	conv := mustConversation(t, db, resp)
	require.Equal(t, domain.ModeAISuggested, conv.HandoverMode)
	meta := conv.Metadata.Data()
	require.Equal(t, "compliance.case_specific", meta.RuleID)
	require.NotEmpty(t, meta.EscalationReason)
	require.Equal(t, int64(1), countActiveHandovers(t, db, conv.ID))

	got := alerts.All()
	require.Len(t, got, 1)
	require.Equal(t, conv.ID, got[0].ConversationID)
	require.Equal(t, "compliance.case_specific", got[0].RuleID)
	require.Equal(t, "Does my specific product need registration?", got[0].Message)
}

func TestSubmitTurn_AskContact(t *testing.T) {
	gen := answer("unused", 0.9)
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "What services do you offer?"})
	require.Equal(t, StatusAskContact, resp.Status)
	require.True(t, resp.Response.ShowContactForm)
	require.Equal(t, ContactRequestText, resp.Response.MessageText)
	require.Zero(t, gen.Calls())

	conv := mustConversation(t, db, resp)
	require.True(t, conv.Metadata.Data().AskContact)
	require.Equal(t, "sales.service_inquiry", conv.Metadata.Data().RuleID)
	require.Zero(t, countActiveHandovers(t, db, conv.ID))
	require.Empty(t, alerts.All())
}

func TestSubmitTurn_AttachmentOnly(t *testing.T) {
	svc, db, _ := newRouter(t, answer("unused", 0.9))

	resp := submit(t, svc, TurnInput{CustomerID: "c1", HasAttachment: true})
	require.Equal(t, StatusHandoff, resp.Status)
	require.Equal(t, "attachment.present", mustConversation(t, db, resp).Metadata.Data().RuleID)

	msgs, err := repo.RecentMessages(context.Background(), db, resp.Response.ConversationID, 0)
	require.NoError(t, err)
	require.Equal(t, AttachmentPlaceholder, msgs[0].Text)
}

func TestSubmitTurn_SecondPassLowConfidenceDefersHandover(t *testing.T) {
	gen := answer("I think labels need a barcode.", 0.45)
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status, "generated text is still delivered")
	require.Equal(t, "I think labels need a barcode.", resp.Response.MessageText)
	require.True(t, resp.Response.HandoverPending)

	convID := resp.Response.ConversationID
	h, err := repo.GetActiveHandover(context.Background(), db, convID)
	require.NoError(t, err)
	require.Equal(t, rules.ReasonLowConfidence, h.Reason)
	require.Len(t, alerts.All(), 1)
	require.Equal(t, domain.ModeAISuggested, mustConversation(t, db, resp).HandoverMode)

	// The handover takes effect on the next turn.
	next := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello again", ConversationID: convID})
	require.Equal(t, StatusHandedOver, next.Status)
	require.Equal(t, HandedOverText, next.Response.MessageText)
	require.Equal(t, convID, next.Response.ConversationID)
	require.Equal(t, 1, gen.Calls())
}

func TestSubmitTurn_SecondPassMediumConfidenceAsksForContact(t *testing.T) {
	svc, db, _ := newRouter(t, answer("Probably yes.", 0.6))

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, "Probably yes.", resp.Response.MessageText)
	require.True(t, resp.Response.ShowContactForm)
	require.False(t, resp.Response.HandoverPending)
	require.True(t, mustConversation(t, db, resp).Metadata.Data().AskContact)
	require.Zero(t, countActiveHandovers(t, db, ""))
}

func TestSubmitTurn_GeneratorSuggestsHandover(t *testing.T) {
	gen := answer("Let me get a specialist.", 0.95)
	gen.res.ShouldHandover = true
	gen.res.HandoverReason = "needs a regulatory specialist"
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status)
	require.True(t, resp.Response.HandoverPending)

	h, err := repo.GetActiveHandover(context.Background(), db, resp.Response.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "needs a regulatory specialist", h.Reason)

	got := alerts.All()
	require.Len(t, got, 1)
	require.Equal(t, RuleAISuggested, got[0].RuleID)
}

func TestSubmitTurn_SecondPassAndSuggestionOpenOneHandover(t *testing.T) {
	gen := answer("Not sure.", 0.3)
	gen.res.ShouldHandover = true
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, int64(1), countActiveHandovers(t, db, resp.Response.ConversationID))

	all, err := repo.ListHandovers(context.Background(), db, resp.Response.ConversationID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, rules.ReasonLowConfidence, all[0].Reason)
	require.Len(t, alerts.All(), 1)
}

func TestSubmitTurn_GeneratorFailureFallsBack(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("backend down")}
	svc, db, alerts := newRouter(t, gen)

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, svc.FallbackText(), resp.Response.MessageText)
	require.Contains(t, resp.Response.MessageText, "support@example.com")
	require.Nil(t, resp.Response.Confidence)

	msg, err := repo.GetMessage(context.Background(), db, resp.Response.MessageID)
	require.NoError(t, err)
	require.Equal(t, ModelFallback, msg.AIModel)
	require.Nil(t, msg.AIConfidence)

	require.Zero(t, countActiveHandovers(t, db, ""), "generator failure is not grounds for escalation")
	require.Empty(t, alerts.All())
}

func TestSubmitTurn_GeneratorTimeoutFallsBack(t *testing.T) {
	slow := generator.Func(func(ctx context.Context, _ generator.Request) (generator.Result, error) {
		<-ctx.Done()
		return generator.Result{}, ctx.Err()
	})
	svc, _, _ := newRouter(t, slow)
	svc.GenerateTimeout = 50 * time.Millisecond

	start := time.Now()
	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, StatusOK, resp.Status)
	require.Equal(t, svc.FallbackText(), resp.Response.MessageText)
}

func TestSubmitTurn_EmptyGeneratedTextFallsBack(t *testing.T) {
	svc, _, _ := newRouter(t, answer("   ", 0.9))

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	require.Equal(t, svc.FallbackText(), resp.Response.MessageText)
}

func TestSubmitTurn_CustomerMessagePersistFailure(t *testing.T) {
	gen := answer("unused", 0.9)
	svc, db, alerts := newRouter(t, gen)
	require.NoError(t, db.Migrator().DropTable(&domain.Feedback{}, &domain.Message{}))

	resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Does my specific product need registration?"})
	require.Equal(t, StatusError, resp.Status)
	require.Equal(t, svc.ApologyText(), resp.Response.MessageText)
	require.Contains(t, resp.Response.MessageText, "support@example.com")
	require.Zero(t, countActiveHandovers(t, db, ""), "no handover on a failed turn")
	require.Empty(t, alerts.All())
	require.Zero(t, gen.Calls())
}

func TestSubmitTurn_Validation(t *testing.T) {
	svc, db, _ := newRouter(t, answer("unused", 0.9))
	svc.MaxTextRunes = 10

	cases := map[string]struct {
		in   TurnInput
		want error
	}{
		"missing customer": {TurnInput{Text: "hi"}, ErrMissingCustomer},
		"empty text":       {TurnInput{CustomerID: "c1", Text: "   "}, ErrEmptyMessage},
		"too long":         {TurnInput{CustomerID: "c1", Text: strings.Repeat("é", 11)}, ErrMessageTooLong},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, err := svc.SubmitTurn(context.Background(), tc.in)
			require.ErrorIs(t, err, tc.want)
			require.Nil(t, resp)
		})
	}

	var n int64
	require.NoError(t, db.Model(&domain.Conversation{}).Count(&n).Error)
	require.Zero(t, n, "validation failures have no side effects")
}

func TestSubmitTurn_ConversationIDResolution(t *testing.T) {
	svc, db, _ := newRouter(t, answer("ok", 0.9))

	first := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	convID := first.Response.ConversationID

	// Known id of the same customer and channel is reused.
	again := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello", ConversationID: convID})
	require.Equal(t, convID, again.Response.ConversationID)

	// Unknown id falls back to the customer's active conversation.
	unknown := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello", ConversationID: "nope"})
	require.Equal(t, convID, unknown.Response.ConversationID)

	// Another customer cannot write into c1's conversation.
	other := submit(t, svc, TurnInput{CustomerID: "c2", Text: "Hello", ConversationID: convID})
	require.NotEqual(t, convID, other.Response.ConversationID)

	// Same customer on another channel gets its own conversation.
	line := submit(t, svc, TurnInput{CustomerID: "c1", Channel: "LINE", Text: "Hello", ConversationID: convID})
	require.NotEqual(t, convID, line.Response.ConversationID)
	require.Equal(t, "line", mustConversation(t, db, line).Channel)

	// A closed conversation is not reopened.
	cs := &ConversationService{DB: db}
	require.NoError(t, cs.Close(context.Background(), convID))
	fresh := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello", ConversationID: convID})
	require.NotEqual(t, convID, fresh.Response.ConversationID)
}

func TestSubmitTurn_HistoryPassedToGenerator(t *testing.T) {
	gen := answer("ok", 0.9)
	svc, _, _ := newRouter(t, gen)
	svc.HistoryWindow = 3

	var convID string
	for _, text := range []string{"one", "two", "three"} {
		resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: text, ConversationID: convID})
		convID = resp.Response.ConversationID
	}

	gen.mu.Lock()
	req := gen.lastRq
	gen.mu.Unlock()

	require.Equal(t, "three", req.Text)
	want := []generator.Turn{
		{Role: domain.SenderBot, Text: "ok"},
		{Role: domain.SenderCustomer, Text: "two"},
		{Role: domain.SenderBot, Text: "ok"},
	}
	if diff := cmp.Diff(want, req.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSubmitTurn_StoredContactFeedsLeadRulesUntilReachable(t *testing.T) {
	gen := answer("ok", 0.9)
	svc, db, _ := newRouter(t, gen)
	ctx := context.Background()
	cs := &ConversationService{DB: db, Locks: svc.Locks}

	first := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	convID := first.Response.ConversationID
	_, err := cs.SubmitContact(ctx, convID, "c1", domain.ContactInfo{Company: "Acme"})
	require.NoError(t, err)

	next := submit(t, svc, TurnInput{CustomerID: "c1", Text: "thanks", ConversationID: convID})
	require.Equal(t, StatusAskContact, next.Status)
	require.Equal(t, "lead.company", mustConversation(t, db, next).Metadata.Data().RuleID)

	_, err = cs.SubmitContact(ctx, convID, "c1", domain.ContactInfo{Email: "ann@acme.example"})
	require.NoError(t, err)
	calls := gen.Calls()
	for _, text := range []string{"Hello", "What documents are usually required?", "thanks"} {
		resp := submit(t, svc, TurnInput{CustomerID: "c1", Text: text, ConversationID: convID})
		require.Equal(t, StatusOK, resp.Status, text)
		require.False(t, resp.Response.ShowContactForm, text)
	}
	require.Equal(t, calls+3, gen.Calls())
	meta := mustConversation(t, db, first).Metadata.Data()
	require.False(t, meta.AskContact)
	require.Equal(t, "Acme", meta.Contact.Company)
}

// waitQueued blocks until n callers hold or wait on key.
func waitQueued(t *testing.T, k *KeyedMutex, key string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		e := k.locks[key]
		return e != nil && e.refs >= n
	}, 2*time.Second, time.Millisecond)
}

func TestSubmitTurn_QueuedWritersKeepEachOthersMetadata(t *testing.T) {
	svc, db, _ := newRouter(t, answer("ok", 0.9))
	ctx := context.Background()
	cs := &ConversationService{DB: db, Locks: svc.Locks}
	convID := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"}).Response.ConversationID

	unlock := svc.Locks.Lock(convID)
	var wg sync.WaitGroup
	var contactErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, contactErr = cs.SubmitContact(ctx, convID, "c1", domain.ContactInfo{Email: "ann@example.com"})
	}()
	waitQueued(t, svc.Locks, convID, 2)
	var resp *TurnResponse
	go func() {
		defer wg.Done()
		resp, _ = svc.SubmitTurn(ctx, TurnInput{CustomerID: "c1", Text: "What services do you offer?", ConversationID: convID})
	}()
	waitQueued(t, svc.Locks, convID, 3)
	unlock()
	wg.Wait()

	require.NoError(t, contactErr)
	require.NotNil(t, resp)
	require.Equal(t, StatusAskContact, resp.Status)
	meta := mustConversation(t, db, resp).Metadata.Data()
	require.NotNil(t, meta.Contact)
	require.Equal(t, "ann@example.com", meta.Contact.Email)
	require.Equal(t, "sales.service_inquiry", meta.RuleID)
}

func TestSubmitTurn_SeesMetadataWrittenWhileWaiting(t *testing.T) {
	svc, db, _ := newRouter(t, answer("ok", 0.9))
	ctx := context.Background()
	convID := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"}).Response.ConversationID

	unlock := svc.Locks.Lock(convID)
	done := make(chan *TurnResponse, 1)
	go func() {
		resp, _ := svc.SubmitTurn(ctx, TurnInput{CustomerID: "c1", Text: "What services do you offer?", ConversationID: convID})
		done <- resp
	}()
	waitQueued(t, svc.Locks, convID, 2)
	require.NoError(t, repo.SetConversationMeta(ctx, db, convID, domain.ConversationMeta{
		Contact: &domain.ContactInfo{Email: "ann@example.com"},
	}))
	unlock()
	resp := <-done

	require.Equal(t, StatusAskContact, resp.Status)
	meta := mustConversation(t, db, resp).Metadata.Data()
	require.Equal(t, "ann@example.com", meta.Contact.Email)
	require.Equal(t, "sales.service_inquiry", meta.RuleID)
	require.True(t, meta.AskContact)
}

func TestSubmitTurn_ConversationClosedWhileWaiting(t *testing.T) {
	svc, db, _ := newRouter(t, answer("ok", 0.9))
	ctx := context.Background()
	oldID := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"}).Response.ConversationID

	unlock := svc.Locks.Lock(oldID)
	done := make(chan *TurnResponse, 1)
	go func() {
		resp, _ := svc.SubmitTurn(ctx, TurnInput{CustomerID: "c1", Text: "Are you still there?", ConversationID: oldID})
		done <- resp
	}()
	waitQueued(t, svc.Locks, oldID, 2)
	require.NoError(t, repo.CloseConversation(ctx, db, oldID))
	unlock()
	resp := <-done

	require.Equal(t, StatusOK, resp.Status)
	require.NotEqual(t, oldID, resp.Response.ConversationID)
	require.Equal(t, domain.ConversationActive, mustConversation(t, db, resp).Status)

	var late int64
	require.NoError(t, db.Model(&domain.Message{}).
		Where("conversation_id = ? AND text = ?", oldID, "Are you still there?").
		Count(&late).Error)
	require.Zero(t, late)
}

func TestTakeover_ConversationClosedWhileWaiting(t *testing.T) {
	db := newTestDB(t)
	conv := seedConversation(t, db, "c1", "web")
	ctx := context.Background()
	locks := NewKeyedMutex()
	hs := &HandoverService{DB: db, Locks: locks}

	unlock := locks.Lock(conv.ID)
	errc := make(chan error, 1)
	go func() {
		_, _, err := hs.Takeover(ctx, conv.ID, "Bob")
		errc <- err
	}()
	waitQueued(t, locks, conv.ID, 2)
	require.NoError(t, repo.CloseConversation(ctx, db, conv.ID))
	unlock()

	require.ErrorIs(t, <-errc, ErrConversationClosed)
	require.Zero(t, countActiveHandovers(t, db, conv.ID))
}

func TestSubmitTurn_ConcurrentFirstTurnsShareConversation(t *testing.T) {
	svc, db, _ := newRouter(t, answer("ok", 0.9))

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.SubmitTurn(context.Background(), TurnInput{CustomerID: "c1", Text: "Hello"})
			if err == nil && resp.Status != StatusError {
				ids[i] = resp.Response.ConversationID
			}
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		require.NotEmpty(t, ids[i])
		require.Equal(t, ids[0], ids[i])
	}
	var convs int64
	require.NoError(t, db.Model(&domain.Conversation{}).Count(&convs).Error)
	require.Equal(t, int64(1), convs)

	var customerMsgs int64
	require.NoError(t, db.Model(&domain.Message{}).Where("sender_type = ?", domain.SenderCustomer).Count(&customerMsgs).Error)
	require.Equal(t, int64(n), customerMsgs)
}

func TestSubmitTurn_ConcurrentEscalationsKeepOneActiveHandover(t *testing.T) {
	svc, db, alerts := newRouter(t, answer("ok", 0.9))
	first := submit(t, svc, TurnInput{CustomerID: "c1", Text: "Hello"})
	convID := first.Response.ConversationID

	hs := &HandoverService{DB: db, Locks: svc.Locks}
	var handoffs atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			resp, err := svc.SubmitTurn(context.Background(), TurnInput{CustomerID: "c1", Text: "Can you guarantee approval?", ConversationID: convID})
			if err == nil && resp.Status == StatusHandoff {
				handoffs.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			_, _, _ = hs.Takeover(context.Background(), convID, "Bob")
		}()
		go func() {
			defer wg.Done()
			_, _ = hs.Release(context.Background(), convID)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, countActiveHandovers(t, db, convID), int64(1))
	require.LessOrEqual(t, len(alerts.All()), int(handoffs.Load()))
}

func TestStampMeta_KeepsServiceTagWhenResultHasNone(t *testing.T) {
	meta := domain.ConversationMeta{ServiceTag: "food", AskContact: true}
	got := stampMeta(meta, rules.Result{
		Reason: "r", RuleID: "x",
		Tags: rules.Tags{ReasonCategory: "cat", Urgency: rules.UrgencyHigh},
	})
	want := domain.ConversationMeta{
		ServiceTag: "food", EscalationReason: "r", ReasonCategory: "cat",
		Urgency: "high", RuleID: "x", AskContact: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("meta mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeHints(t *testing.T) {
	c := &domain.ContactInfo{Company: "Acme", TargetMarket: "EU", Product: "tea"}
	got := mergeHints(rules.Hints{Product: "coffee"}, c)
	require.Equal(t, rules.Hints{CompanyName: "Acme", TargetMarket: "EU", Product: "coffee"}, got)
	require.Equal(t, rules.Hints{Product: "x"}, mergeHints(rules.Hints{Product: "x"}, nil))

	c.Email = "ann@acme.example"
	require.Equal(t, rules.Hints{Product: "coffee"}, mergeHints(rules.Hints{Product: "coffee"}, c))
}

func TestFailureReason(t *testing.T) {
	require.Equal(t, "timeout", failureReason(generator.ErrTimeout))
	require.Equal(t, "timeout", failureReason(context.DeadlineExceeded))
	require.Equal(t, "empty", failureReason(generator.ErrEmptyAnswer))
	require.Equal(t, "error", failureReason(errors.New("x")))
}

func mustConversation(t *testing.T, db *gorm.DB, resp *TurnResponse) *domain.Conversation {
	t.Helper()
	c, err := repo.GetConversation(context.Background(), db, resp.Response.ConversationID)
	require.NoError(t, err)
	return c
}
