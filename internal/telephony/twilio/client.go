// Package twilio is the concrete telephony.Provider implementation
// for Twilio Voice + Media Streams (§4.1, §6's phone channel).
//
// Grounded directly on agentplexus-omnivoice-twilio: internal/client
// for the Basic-Auth REST client, callsystem for the Call
// lifecycle/registry shape, transport for the Media Streams
// WebSocket plumbing, and stt/tts for the TwiML response shape. Kept
// HOW throughout, replaced WHAT: Twilio bookkeeping now drives
// session.Supervisor sessions and conversation.Outbound instead of
// OmniVoice's generic agent.Session.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fieldopsvoice/dispatch/internal/apperr"
)

// restClient is a minimal Twilio REST API client, grounded on
// agentplexus-omnivoice-twilio/internal/client/client.go.
type restClient struct {
	accountSID string
	authToken  string
	baseURL    string
	http       *http.Client
}

func newRESTClient(accountSID, authToken string) *restClient {
	return &restClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com/2010-04-01",
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

type callResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
	To     string `json:"to"`
	From   string `json:"from"`
}

// makeCall places an outbound call with inline TwiML pointing the
// call at the Media Streams endpoint.
func (c *restClient) makeCall(ctx context.Context, to, from, twiml string) (*callResource, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Twiml", twiml)
	return c.post(ctx, fmt.Sprintf("/Accounts/%s/Calls.json", c.accountSID), form)
}

// hangupCall ends an in-progress call via the REST API's update
// endpoint (Status=completed).
func (c *restClient) hangupCall(ctx context.Context, callSID string) (*callResource, error) {
	form := url.Values{}
	form.Set("Status", "completed")
	return c.post(ctx, fmt.Sprintf("/Accounts/%s/Calls/%s.json", c.accountSID, callSID), form)
}

func (c *restClient) post(ctx context.Context, path string, form url.Values) (*callResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "twilio_request_build_failed", "failed to build twilio request", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ProviderTransient, "twilio_request_failed", "twilio api request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, apperr.New(apperr.ProviderFatal, "twilio_api_error", fmt.Sprintf("twilio api returned %d: %s", resp.StatusCode, string(body)))
	}

	var out callResource
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Wrap(apperr.ProviderFatal, "twilio_response_decode_failed", "failed to decode twilio response", err)
	}
	return &out, nil
}
