package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tbourn/support-router/internal/channels"
	"github.com/tbourn/support-router/internal/services"
)

func startWidget(t *testing.T, h *Handlers) *httptest.Server {
	t.Helper()
	r := newEngine()
	r.GET("/ws/widget", h.Widget)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWidget(t *testing.T, srv *httptest.Server, customerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/widget?customer_id=" + customerID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) channels.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f channels.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestWidget_TurnRoundTrip(t *testing.T) {
	var got services.TurnInput
	turns := stubTurns{fn: func(_ context.Context, in services.TurnInput) (*services.TurnResponse, error) {
		got = in
		return &services.TurnResponse{
			Status:   services.StatusOK,
			Response: services.TurnReply{ConversationID: "conv-9", MessageText: "hello back"},
		}, nil
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
	conn := dialWidget(t, startWidget(t, h), "c1")

	// The frame claims another customer; the socket's identity wins.
	if err := conn.WriteJSON(channels.WebMessage{CustomerID: "intruder", Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := readFrame(t, conn)
	if f.Type != "turn" || f.Text != "hello back" || f.ConversationID != "conv-9" || f.Status != string(services.StatusOK) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if got.CustomerID != "c1" || got.Channel != channels.ChannelWeb || got.Text != "hi" {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestWidget_BadFrameAndTurnError(t *testing.T) {
	turns := stubTurns{fn: func(context.Context, services.TurnInput) (*services.TurnResponse, error) {
		return nil, services.ErrEmptyMessage
	}}
	h := New(turns, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
	conn := dialWidget(t, startWidget(t, h), "c1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "error" || f.Text != "invalid message" {
		t.Fatalf("unexpected frame: %+v", f)
	}

	// The socket survives a bad frame.
	if err := conn.WriteJSON(channels.WebMessage{Message: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != "error" {
		t.Fatalf("unexpected frame: %+v", f)
	}
}

func TestWidget_HubPushReachesSocket(t *testing.T) {
	hub := channels.NewHub()
	h := New(stubTurns{}, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{Hub: hub})
	conn := dialWidget(t, startWidget(t, h), "c1")

	// A completed turn proves the socket is registered.
	if err := conn.WriteJSON(channels.WebMessage{Message: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readFrame(t, conn)

	if n := hub.Push("c1", channels.Frame{Type: "message", SenderType: "agent", Text: "an agent here"}); n != 1 {
		t.Fatalf("pushed to %d sockets, want 1", n)
	}
	if f := readFrame(t, conn); f.Type != "message" || f.Text != "an agent here" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if n := hub.Push("someone-else", channels.Frame{Type: "message"}); n != 0 {
		t.Fatalf("push to unknown customer reached %d sockets", n)
	}
}

func TestWidget_RejectsPlainRequests(t *testing.T) {
	h := New(stubTurns{}, stubConvs{}, stubHandovers{}, stubFBSvc{}, Options{})
	r := newEngine()
	r.GET("/ws/widget", h.Widget)

	cases := []struct {
		name, url, code string
	}{
		{"missing customer", "/ws/widget", ErrCodeBadRequest},
		{"no upgrade", "/ws/widget?customer_id=c1", ErrCodeWebsocketNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.url, nil))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status=%d", w.Code)
			}
			if er := decodeJSON[ErrorResponse](t, w); er.Code != tc.code {
				t.Fatalf("code=%q want %q", er.Code, tc.code)
			}
		})
	}
}
