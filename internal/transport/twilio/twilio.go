// Package twilio implements transport.Messenger on the Twilio Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	twilio "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type Config struct {
	AccountSID string
	AuthToken  string
	// From is the sender address, e.g. "whatsapp:+14155238886".
	From string
	// ContentSID is the approved template used by SendTemplate.
	ContentSID string
}

// messageCreator is the subset of the generated API client in use.
type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

type Client struct {
	cfg Config
	api messageCreator
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.AccountSID) == "" {
		missing = append(missing, "account_sid")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		missing = append(missing, "auth_token")
	}
	if strings.TrimSpace(cfg.From) == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("twilio: missing %s", strings.Join(missing, ", "))
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rc := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{cfg: cfg, api: rc.Api, log: log.With(logx.String("comp", "twilio"))}, nil
}

func (c *Client) SendSession(ctx context.Context, to, body, mediaURL string) (string, error) {
	params := &api.CreateMessageParams{}
	params.SetFrom(c.cfg.From)
	params.SetTo(to)
	params.SetBody(body)
	if mediaURL != "" {
		params.SetMediaUrl([]string{mediaURL})
	}
	return c.create(ctx, params)
}

func (c *Client) SendTemplate(ctx context.Context, to string, vars map[string]string) (string, error) {
	if c.cfg.ContentSID == "" {
		return "", transport.Permanent(errors.New("twilio: content_sid is not configured"))
	}
	b, err := json.Marshal(vars)
	if err != nil {
		return "", transport.Permanent(fmt.Errorf("encode content variables: %w", err))
	}
	params := &api.CreateMessageParams{}
	params.SetFrom(c.cfg.From)
	params.SetTo(to)
	params.SetContentSid(c.cfg.ContentSID)
	params.SetContentVariables(string(b))
	return c.create(ctx, params)
}

type createResult struct {
	sid string
	err error
}

// create runs the blocking API call and gives up when ctx ends.
// The HTTP request itself is not cancellable through the generated client.
func (c *Client) create(ctx context.Context, params *api.CreateMessageParams) (string, error) {
	done := make(chan createResult, 1)
	go func() {
		resp, err := c.api.CreateMessage(params)
		if err != nil {
			done <- createResult{err: classify(err)}
			return
		}
		var sid string
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- createResult{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err == nil {
			c.log.Debug("message accepted", logx.String("sid", r.sid))
		}
		return r.sid, r.err
	}
}

// classify maps provider errors; 4xx other than 429 are not retried.
func classify(err error) error {
	var re *client.TwilioRestError
	if !errors.As(err, &re) {
		return fmt.Errorf("twilio: %w", err)
	}
	se := &transport.SendError{Code: re.Code, Status: re.Status, Msg: re.Message}
	if re.Status >= 400 && re.Status < 500 && re.Status != http.StatusTooManyRequests {
		return transport.Permanent(se)
	}
	return se
}
