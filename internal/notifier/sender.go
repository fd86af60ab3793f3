// Package notifier holds the per-channel delivery transports behind
// one Sender contract. A sender either delivers or returns an error;
// retry policy lives in the worker, not here.
package notifier

import (
	"context"
	"fmt"

	"github.com/riverguard/parametric-api/internal/model"
)

// Sender delivers one rendered notification job over its channel.
type Sender interface {
	Send(ctx context.Context, job *model.NotificationJob) error
}

// Registry maps channels to senders.
type Registry struct {
	senders map[model.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[model.Channel]Sender)}
}

func (r *Registry) Register(channel model.Channel, sender Sender) {
	r.senders[channel] = sender
}

func (r *Registry) For(channel model.Channel) (Sender, error) {
	sender, ok := r.senders[channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel: %s", channel)
	}
	return sender, nil
}
