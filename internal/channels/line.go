package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	lineAPIBase      = "https://api.line.me"
	lineSignatureHdr = "X-Line-Signature"
	lineMaxText      = 5000
)

// Line is the LINE Messaging API adapter.
type Line struct {
	secret      string
	accessToken string
	api         *apiClient
}

// NewLine returns a LINE adapter. baseURL may be empty.
func NewLine(channelSecret, accessToken, baseURL string) *Line {
	if baseURL == "" {
		baseURL = lineAPIBase
	}
	return &Line{
		secret:      channelSecret,
		accessToken: accessToken,
		api:         newAPIClient("line", strings.TrimRight(baseURL, "/"), 50, 10),
	}
}

func (l *Line) Name() string { return ChannelLine }

type lineWebhook struct {
	Events []lineEvent `json:"events"`
}

type lineEvent struct {
	Type    string `json:"type"`
	Source  struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message"`
}

// Normalize implements Adapter. The X-Line-Signature header must carry the
// base64 HMAC-SHA256 of the raw body keyed with the channel secret.
func (l *Line) Normalize(_ context.Context, hdr http.Header, body []byte) ([]Inbound, error) {
	if !verifyBase64HMAC(body, hdr.Get(lineSignatureHdr), l.secret) {
		return nil, ErrBadSignature
	}
	var wh lineWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	out := make([]Inbound, 0, len(wh.Events))
	for _, ev := range wh.Events {
		if ev.Type != "message" || ev.Source.UserID == "" {
			continue
		}
		in := Inbound{CustomerID: ev.Source.UserID, Channel: ChannelLine}
		switch ev.Message.Type {
		case "text":
			in.Text = ev.Message.Text
		case "image", "video", "audio", "file":
			in.HasAttachment = true
		default:
			continue // stickers, locations
		}
		out = append(out, in)
	}
	return out, nil
}

type linePush struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send pushes a text message to the user.
func (l *Line) Send(ctx context.Context, customerID, text string) error {
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+l.accessToken)
	return l.api.postJSON(ctx, "/v2/bot/message/push", hdr, linePush{
		To:       customerID,
		Messages: []lineMessage{{Type: "text", Text: truncate(text, lineMaxText)}},
	})
}
