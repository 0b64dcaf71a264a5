package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	smsEndpoint = "https://rest.messagebird.com/messages"
	smsTimeout  = 5 * time.Second
)

// SMSSink delivers one SMS to a batch of recipients.
type SMSSink interface {
	SendSMS(ctx context.Context, body string, recipients []string) error
}

// HTTPSMSSink posts to a MessageBird-shaped REST gateway: a single
// "AccessKey <key>" bearer header and one JSON body per send.
type HTTPSMSSink struct {
	client    *http.Client
	endpoint  string
	accessKey string
}

// NewHTTPSMSSink builds a sink authenticated with accessKey against the
// default MessageBird endpoint.
func NewHTTPSMSSink(accessKey string) *HTTPSMSSink {
	return &HTTPSMSSink{
		client:    &http.Client{Timeout: smsTimeout},
		endpoint:  smsEndpoint,
		accessKey: accessKey,
	}
}

type sendSMSRequest struct {
	Originator string   `json:"originator"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients"`
}

type apiErrorInner struct {
	Code        int64  `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter,omitempty"`
}

type apiError struct {
	Errors []apiErrorInner `json:"errors"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error: %v", e.Errors)
}

// SendSMS sends body to every recipient in a single gateway call, truncating
// to the gateway's character limit first.
func (s *HTTPSMSSink) SendSMS(ctx context.Context, body string, recipients []string) error {
	payload, err := json.Marshal(sendSMSRequest{
		Originator: "inbox",
		Body:       truncateSMS(body),
		Recipients: recipients,
	})
	if err != nil {
		return fmt.Errorf("sms: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Authorization", "AccessKey "+s.accessKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sms: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err != nil {
			return fmt.Errorf("sms: unexpected response: %s", respBody)
		}
		return fmt.Errorf("sms: %w", &apiErr)
	}
	return nil
}
