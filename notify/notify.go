// Package notify delivers administrator and user notifications over a closed set of channels.
//
// Delivery is best effort: every message is sent on its own goroutine and failures are logged,
// never returned to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobportal/config"
	"jobportal/logger"
)

// ErrUnknownChannel is returned for channel names outside the supported set.
var ErrUnknownChannel = errors.New("unknown notification channel")

// Channel sends one message to one destination.
type Channel interface {
	Notify(ctx context.Context, destination, message string) error
}

// Notifier is what the services depend on.
type Notifier interface {
	NotifyAdmins(ctx context.Context, message string)
	NotifyUser(ctx context.Context, email, message string)
}

// Nop drops every message.
type Nop struct{}

func (Nop) NotifyAdmins(context.Context, string)       {}
func (Nop) NotifyUser(context.Context, string, string) {}

// Target pairs a channel with the destination it should deliver to.
type Target struct {
	Name        string
	Channel     Channel
	Destination string
}

// Dispatcher fans messages out to its targets.
type Dispatcher struct {
	admins  []Target
	users   Channel
	timeout time.Duration
	wg      sync.WaitGroup
}

// New builds a Dispatcher from explicit targets. users may be nil, in which case user
// notifications are dropped.
func New(admins []Target, users Channel) *Dispatcher {
	return &Dispatcher{admins: admins, users: users, timeout: 30 * time.Second}
}

// NewFromConfig builds the admin targets and the user email channel from configuration.
func NewFromConfig(cfg config.NotifyConfig) (*Dispatcher, error) {
	email := &EmailChannel{Addr: cfg.SMTPAddr, From: cfg.From}

	targets := make([]Target, 0, len(cfg.Admins))
	for i, a := range cfg.Admins {
		switch a.Channel {
		case config.ChannelEmail:
			targets = append(targets, Target{Name: a.Channel, Channel: email, Destination: a.Destination})
		case config.ChannelSlack:
			slack := &SlackChannel{Username: cfg.SlackUsername, Room: a.SlackRoom}
			targets = append(targets, Target{Name: a.Channel, Channel: slack, Destination: a.Destination})
		default:
			return nil, fmt.Errorf("%w: admins[%d] %q", ErrUnknownChannel, i, a.Channel)
		}
	}

	var users Channel
	if cfg.NotifyUsers {
		users = email
	}
	return New(targets, users), nil
}

// NotifyAdmins sends message to every configured admin target.
func (d *Dispatcher) NotifyAdmins(ctx context.Context, message string) {
	for _, t := range d.admins {
		d.send(ctx, t.Name, t.Channel, t.Destination, message)
	}
}

// NotifyUser sends message to the user's email address when user notifications are enabled.
func (d *Dispatcher) NotifyUser(ctx context.Context, email, message string) {
	if d.users == nil || email == "" {
		return
	}
	d.send(ctx, config.ChannelEmail, d.users, email, message)
}

// Wait blocks until every in-flight notification has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) send(ctx context.Context, name string, ch Channel, dest, message string) {
	// the request that triggered us is usually gone before delivery finishes
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := ch.Notify(ctx, dest, message); err != nil {
			logger.Warn("Failed to deliver %s notification to %s: %v", name, dest, err)
			return
		}
		logger.Debug("Delivered %s notification to %s", name, dest)
	}()
}
