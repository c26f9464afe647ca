package channels

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	graphAPIBase          = "https://graph.facebook.com/v19.0"
	messengerSignatureHdr = "X-Hub-Signature-256"
	messengerMaxText      = 2000
)

// Messenger is the Facebook Messenger Platform adapter.
type Messenger struct {
	appSecret   string
	pageToken   string
	verifyToken string
	api         *apiClient
}

// NewMessenger returns a Messenger adapter. baseURL may be empty.
func NewMessenger(appSecret, pageToken, verifyToken, baseURL string) *Messenger {
	if baseURL == "" {
		baseURL = graphAPIBase
	}
	return &Messenger{
		appSecret:   appSecret,
		pageToken:   pageToken,
		verifyToken: verifyToken,
		api:         newAPIClient("messenger", strings.TrimRight(baseURL, "/"), 20, 5),
	}
}

func (m *Messenger) Name() string { return ChannelMessenger }

// VerifyChallenge answers the webhook subscription handshake. It returns the
// challenge to echo and whether the request is genuine.
func (m *Messenger) VerifyChallenge(mode, token, challenge string) (string, bool) {
	if mode != "subscribe" || m.verifyToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(m.verifyToken)) != 1 {
		return "", false
	}
	return challenge, true
}

type messengerWebhook struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messengerEvent `json:"messaging"`
	} `json:"entry"`
}

type messengerEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text        string `json:"text"`
		IsEcho      bool   `json:"is_echo"`
		Attachments []struct {
			Type string `json:"type"`
		} `json:"attachments"`
	} `json:"message"`
	Postback *struct {
		Title string `json:"title"`
	} `json:"postback"`
}

// Normalize implements Adapter. X-Hub-Signature-256 must be "sha256=" plus
// the hex HMAC-SHA256 of the raw body keyed with the app secret.
func (m *Messenger) Normalize(_ context.Context, hdr http.Header, body []byte) ([]Inbound, error) {
	if !verifyHexHMAC(body, hdr.Get(messengerSignatureHdr), m.appSecret) {
		return nil, ErrBadSignature
	}
	var wh messengerWebhook
	if err := json.Unmarshal(body, &wh); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if wh.Object != "page" {
		return nil, nil
	}

	var out []Inbound
	for _, e := range wh.Entry {
		for _, ev := range e.Messaging {
			if ev.Sender.ID == "" {
				continue
			}
			in := Inbound{CustomerID: ev.Sender.ID, Channel: ChannelMessenger}
			switch {
			case ev.Message != nil:
				if ev.Message.IsEcho {
					continue // our own page replies
				}
				in.Text = ev.Message.Text
				in.HasAttachment = len(ev.Message.Attachments) > 0
			case ev.Postback != nil:
				in.Text = ev.Postback.Title
			default:
				continue // deliveries, reads
			}
			if in.Text == "" && !in.HasAttachment {
				continue
			}
			out = append(out, in)
		}
	}
	return out, nil
}

type messengerSend struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	MessagingType string `json:"messaging_type"`
	Message       struct {
		Text string `json:"text"`
	} `json:"message"`
}

// Send delivers a text reply through the Send API.
func (m *Messenger) Send(ctx context.Context, customerID, text string) error {
	var p messengerSend
	p.Recipient.ID = customerID
	p.MessagingType = "RESPONSE"
	p.Message.Text = truncate(text, messengerMaxText)
	return m.api.postJSON(ctx, "/me/messages?access_token="+url.QueryEscape(m.pageToken), nil, p)
}
