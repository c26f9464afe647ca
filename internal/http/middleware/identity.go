// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the customer a request speaks for. Public turn and
// feedback routes carry the customer in the JSON body; the widget and the
// history endpoint send it as X-Customer-ID or ?customer_id=. Middleware that
// runs before the handler binds the body (idempotency, logging) reads it
// through Identity, which peeks at the body and restores it.
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderCustomerID carries the customer identifier for routes without a body.
const HeaderCustomerID = "X-Customer-ID"

const (
	ctxKeyCustomer = "customerID"
	ctxKeyChannel  = "channel"
	ctxKeyAgent    = "agentName"
	ctxKeyIdentity = "identity.resolved"
)

// maxPeekBytes bounds how much of a body Identity will buffer.
const maxPeekBytes = 64 << 10

// Identity returns the customer id and channel for the request. The first
// call resolves them from header, query and JSON body (in that order) and
// caches the result on the context. Channel defaults to "web".
func Identity(c *gin.Context) (customerID, channel string) {
	if _, done := c.Get(ctxKeyIdentity); done {
		return c.GetString(ctxKeyCustomer), c.GetString(ctxKeyChannel)
	}

	customerID = strings.TrimSpace(c.GetHeader(HeaderCustomerID))
	if customerID == "" {
		customerID = strings.TrimSpace(c.Query("customer_id"))
	}
	bodyID, bodyChannel := peekBody(c)
	if customerID == "" {
		customerID = bodyID
	}
	channel = strings.ToLower(strings.TrimSpace(bodyChannel))
	if channel == "" {
		channel = "web"
	}

	SetCustomer(c, customerID, channel)
	return customerID, channel
}

// SetCustomer records the resolved identity, e.g. after a handler has bound
// the body itself.
func SetCustomer(c *gin.Context, customerID, channel string) {
	c.Set(ctxKeyCustomer, customerID)
	c.Set(ctxKeyChannel, channel)
	c.Set(ctxKeyIdentity, true)
}

// AgentName returns the operator name set by AdminAuth.
func AgentName(c *gin.Context) string {
	return c.GetString(ctxKeyAgent)
}

// peekBody reads customer_id and channel from a JSON body without consuming it.
func peekBody(c *gin.Context) (customerID, channel string) {
	if c.Request == nil || c.Request.Body == nil {
		return "", ""
	}
	if !strings.Contains(c.ContentType(), "json") {
		return "", ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes+1))
	c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(raw), c.Request.Body), c.Request.Body}
	if err != nil || len(raw) > maxPeekBytes {
		return "", ""
	}

	var probe struct {
		CustomerID string `json:"customer_id"`
		Channel    string `json:"channel"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return "", ""
	}
	return strings.TrimSpace(probe.CustomerID), probe.Channel
}

type readCloser struct {
	io.Reader
	io.Closer
}
