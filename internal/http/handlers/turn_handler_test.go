package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/support-router/internal/http/middleware"
	"github.com/tbourn/support-router/internal/repo"
	"github.com/tbourn/support-router/internal/services"
)

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("h_%s.db", uuid.NewString()))
	db, err := gorm.Open(sqlite.Open(repo.SQLiteDSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func postTurn(h *Handlers, body, idemKey string) *httptest.ResponseRecorder {
	r := newEngine()
	r.POST("/turns", h.SubmitTurn)
	req := httptest.NewRequest(http.MethodPost, "/turns", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set(middleware.HeaderIdempotencyKey, idemKey)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitTurn_MapsRequestToInput(t *testing.T) {
	var got services.TurnInput
	turns := stubTurns{fn: func(_ context.Context, in services.TurnInput) (*services.TurnResponse, error) {
		got = in
		return &services.TurnResponse{
			Status:   services.StatusOK,
			Response: services.TurnReply{ConversationID: "conv-1", MessageText: "hello", Timestamp: time.Unix(0, 0).UTC()},
		}, nil
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})

	w := postTurn(h, `{"customer_id":" c1 ","customer_name":"Dana","channel":"WEB","message":"  hi\r\n\r\n\r\nthere ",
		"conversation_id":"conv-1","hints":{"company":"Acme","target_market":"EU","product":"bars"}}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got.CustomerID != "c1" || got.Channel != "web" || got.Text != "hi\n\nthere" || got.ConversationID != "conv-1" {
		t.Fatalf("unexpected input: %+v", got)
	}
	if got.Hints.CompanyName != "Acme" || got.Hints.TargetMarket != "EU" || got.Hints.Product != "bars" {
		t.Fatalf("hints not mapped: %+v", got.Hints)
	}
	resp := decodeJSON[services.TurnResponse](t, w)
	if resp.Status != services.StatusOK || resp.Response.MessageText != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitTurn_ValidationErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"missing customer", services.ErrMissingCustomer, ErrCodeBadRequest},
		{"empty", services.ErrEmptyMessage, ErrCodeBadRequest},
		{"too long", services.ErrMessageTooLong, ErrCodeMessageTooLong},
		{"other", errors.New("boom"), ErrCodeTurnFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			turns := stubTurns{fn: func(context.Context, services.TurnInput) (*services.TurnResponse, error) {
				return nil, tc.err
			}}
			h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
			w := postTurn(h, `{"customer_id":"c1","message":"x"}`, "")

			want := http.StatusBadRequest
			if tc.wantCode == ErrCodeTurnFailed {
				want = http.StatusInternalServerError
			}
			if w.Code != want {
				t.Fatalf("status=%d want %d", w.Code, want)
			}
			if er := decodeJSON[ErrorResponse](t, w); er.Code != tc.wantCode {
				t.Fatalf("code=%q want %q", er.Code, tc.wantCode)
			}
		})
	}
}

func TestSubmitTurn_BadJSON(t *testing.T) {
	h := New(stubTurns{}, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
	if w := postTurn(h, `{"customer_id":`, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSubmitTurn_ErrorStatusIsStill200(t *testing.T) {
	turns := stubTurns{fn: func(context.Context, services.TurnInput) (*services.TurnResponse, error) {
		return &services.TurnResponse{Status: services.StatusError, Response: services.TurnReply{MessageText: "sorry"}}, nil
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
	w := postTurn(h, `{"customer_id":"c1","message":"x"}`, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if resp := decodeJSON[services.TurnResponse](t, w); resp.Status != services.StatusError {
		t.Fatalf("unexpected status %q", resp.Status)
	}
}

func TestSubmitTurn_IdempotentReplay(t *testing.T) {
	db := newHandlerDB(t)
	calls := 0
	turns := stubTurns{fn: func(context.Context, services.TurnInput) (*services.TurnResponse, error) {
		calls++
		return &services.TurnResponse{
			Status:   services.StatusOK,
			Response: services.TurnReply{ConversationID: "conv-1", MessageText: fmt.Sprintf("answer %d", calls)},
		}, nil
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{DB: db, IdempotencyTTL: time.Hour})

	body := `{"customer_id":"c1","message":"hi"}`
	first := postTurn(h, body, "key-1")
	second := postTurn(h, body, "key-1")

	if calls != 1 {
		t.Fatalf("turn ran %d times, want 1", calls)
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}

	// Same key from another customer is a different tuple.
	postTurn(h, `{"customer_id":"c2","message":"hi"}`, "key-1")
	if calls != 2 {
		t.Fatalf("expected a fresh turn for another customer, calls=%d", calls)
	}
}

func TestSubmitTurn_ErrorTurnsAreNotStored(t *testing.T) {
	db := newHandlerDB(t)
	calls := 0
	turns := stubTurns{fn: func(context.Context, services.TurnInput) (*services.TurnResponse, error) {
		calls++
		return &services.TurnResponse{Status: services.StatusError}, nil
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{DB: db})

	postTurn(h, `{"customer_id":"c1","message":"hi"}`, "key-err")
	w := postTurn(h, `{"customer_id":"c1","message":"hi"}`, "key-err")

	if calls != 2 {
		t.Fatalf("failed turn must be retried, calls=%d", calls)
	}
	if w.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("unexpected replay of a failed turn")
	}
}
