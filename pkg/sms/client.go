// Package sms provides a client for sending notifications through an
// HTTP SMS gateway.
package sms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client represents an SMS gateway client.
type Client struct {
	gatewayURL string
	apiKey     string
	from       string
	client     *http.Client
}

// NewClient creates a new SMS Client for the given gateway.
func NewClient(gatewayURL, apiKey, from string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		from:       from,
		client:     &http.Client{},
	}
}

// sendRequest represents the gateway's message payload.
type sendRequest struct {
	To   string `json:"to"`   // recipient phone number
	From string `json:"from"` // sender id
	Text string `json:"text"` // message text
}

// Send sends an SMS to the specified recipient. The title is folded
// into the text since SMS has no subject line.
func (c *Client) Send(to, title, msg string) error {
	reqBody := sendRequest{
		To:   to,
		From: c.from,
		Text: fmt.Sprintf("%s: %s", title, msg),
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.gatewayURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway error: %s", resp.Status)
	}

	return nil
}
