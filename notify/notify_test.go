package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobportal/config"
)

type recordingChannel struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingChannel) Notify(_ context.Context, dest, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, dest+"|"+msg)
	return r.err
}

func (r *recordingChannel) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestDispatcher_NotifyAdmins(t *testing.T) {
	a, b := &recordingChannel{}, &recordingChannel{err: errors.New("boom")}
	d := New([]Target{
		{Name: "email", Channel: a, Destination: "admin@example.com"},
		{Name: "slack", Channel: b, Destination: "https://hooks.example.com/x"},
	}, nil)

	d.NotifyAdmins(context.Background(), "hello")
	d.Wait()

	assert.Equal(t, []string{"admin@example.com|hello"}, a.messages())
	// a failing channel is attempted and swallowed
	assert.Equal(t, []string{"https://hooks.example.com/x|hello"}, b.messages())
}

func TestDispatcher_NotifyUser(t *testing.T) {
	users := &recordingChannel{}
	d := New(nil, users)
	d.NotifyUser(context.Background(), "u@example.com", "approved")
	d.NotifyUser(context.Background(), "", "dropped")
	d.Wait()
	assert.Equal(t, []string{"u@example.com|approved"}, users.messages())

	quiet := New(nil, nil)
	quiet.NotifyUser(context.Background(), "u@example.com", "nothing")
	quiet.Wait()
}

func TestDispatcher_SurvivesCancelledContext(t *testing.T) {
	ch := &recordingChannel{}
	d := New([]Target{{Name: "email", Channel: ch, Destination: "a@b"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.NotifyAdmins(ctx, "still sent")
	d.Wait()
	assert.Len(t, ch.messages(), 1)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().Notify
	cfg.Admins = []config.NotifyTarget{
		{Channel: config.ChannelEmail, Destination: "admin@example.com"},
		{Channel: config.ChannelSlack, Destination: "https://hooks.example.com/x", SlackRoom: "#ops"},
	}
	cfg.NotifyUsers = true

	d, err := NewFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, d.admins, 2)
	assert.IsType(t, &EmailChannel{}, d.admins[0].Channel)
	slack, ok := d.admins[1].Channel.(*SlackChannel)
	require.True(t, ok)
	assert.Equal(t, "#ops", slack.Room)
	assert.Equal(t, "Image Processing Portal", slack.Username)
	assert.NotNil(t, d.users)

	cfg.Admins = append(cfg.Admins, config.NotifyTarget{Channel: "pager", Destination: "x"})
	_, err = NewFromConfig(cfg)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestSlackChannel(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := &SlackChannel{Username: "Image Processing Portal", Client: srv.Client()}
	require.NoError(t, s.Notify(context.Background(), srv.URL, "Approve new account?"))
	assert.Equal(t, slackPayload{Text: "Approve new account?", Username: "Image Processing Portal"}, got)
}

func TestSlackChannel_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no_service", http.StatusNotFound)
	}))
	defer srv.Close()

	s := &SlackChannel{Username: "x"}
	err := s.Notify(context.Background(), srv.URL, "hi")
	require.ErrorIs(t, err, ErrWebhookFailed)
	assert.Contains(t, err.Error(), "no_service")
}

func TestEmailChannel(t *testing.T) {
	var (
		gotAddr, gotFrom string
		gotTo            []string
		gotMsg           string
	)
	e := &EmailChannel{
		Addr: "mail:25",
		From: "portal@example.com",
		SendMail: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
			return nil
		},
	}

	require.NoError(t, e.Notify(context.Background(), "u@example.com", "line one\nline two"))
	assert.Equal(t, "mail:25", gotAddr)
	assert.Equal(t, "portal@example.com", gotFrom)
	assert.Equal(t, []string{"u@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: portal@example.com\r\nTo: u@example.com\r\n"))
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nline one\r\nline two"))

	assert.Error(t, e.Notify(context.Background(), "u@example.com\r\nBcc: x@y", "x"))
}
