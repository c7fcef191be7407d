package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"alertbot/internal/transport"
	logx "alertbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	got   *api.CreateMessageParams
	err   error
	block chan struct{}
}

func (f *fakeAPI) CreateMessage(p *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	sid := "SM123"
	return &api.ApiV2010Message{Sid: &sid}, nil
}

func newTestClient(f *fakeAPI, contentSID string) *Client {
	return &Client{
		cfg: Config{AccountSID: "AC1", AuthToken: "t", From: "whatsapp:+1000", ContentSID: contentSID},
		api: f,
		log: logx.Nop(),
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_sid")

	c, err := New(Config{AccountSID: "AC1", AuthToken: "t", From: "whatsapp:+1"}, logx.Nop())
	require.NoError(t, err)
	assert.NotNil(t, c.api)
}

func TestSendSessionParams(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{}
	sid, err := newTestClient(f, "").SendSession(context.Background(), "whatsapp:+1555", "hola", "https://x/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)
	require.NotNil(t, f.got.To)
	assert.Equal(t, "whatsapp:+1555", *f.got.To)
	assert.Equal(t, "whatsapp:+1000", *f.got.From)
	assert.Equal(t, "hola", *f.got.Body)
	require.NotNil(t, f.got.MediaUrl)
	assert.Equal(t, []string{"https://x/a.jpg"}, *f.got.MediaUrl)
}

func TestSendTemplateParams(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{}
	_, err := newTestClient(f, "HX1").SendTemplate(context.Background(), "whatsapp:+1555",
		map[string]string{"1": "Depósito", "2": "2025-03-10 09:00 UTC-3", "3": "Persona"})
	require.NoError(t, err)
	assert.Equal(t, "HX1", *f.got.ContentSid)
	var vars map[string]string
	require.NoError(t, json.Unmarshal([]byte(*f.got.ContentVariables), &vars))
	assert.Equal(t, "Persona", vars["3"])
	assert.Nil(t, f.got.Body)

	_, err = newTestClient(&fakeAPI{}, "").SendTemplate(context.Background(), "x", nil)
	assert.True(t, transport.IsPermanent(err))
}

func TestClassify(t *testing.T) {
	t.Parallel()
	bad := &client.TwilioRestError{Status: 400, Code: 21211, Message: "invalid To"}
	_, err := newTestClient(&fakeAPI{err: bad}, "").SendSession(context.Background(), "x", "b", "")
	assert.True(t, transport.IsPermanent(err))

	busy := &client.TwilioRestError{Status: 429, Code: 20429}
	_, err = newTestClient(&fakeAPI{err: busy}, "").SendSession(context.Background(), "x", "b", "")
	require.Error(t, err)
	assert.False(t, transport.IsPermanent(err))

	_, err = newTestClient(&fakeAPI{err: errors.New("dial tcp")}, "").SendSession(context.Background(), "x", "b", "")
	assert.False(t, transport.IsPermanent(err))
}

func TestSendHonorsContext(t *testing.T) {
	t.Parallel()
	f := &fakeAPI{block: make(chan struct{})}
	defer close(f.block)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTestClient(f, "").SendSession(ctx, "x", "b", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
