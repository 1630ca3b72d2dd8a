package event

import (
	"context"
	"sync"
	"time"

	"github.com/BlackMission/idpauth/internal/domain"
)

// Pending is the completion handle of one registered event. It settles at
// most once, with either event data or an error.
type Pending struct {
	ID           string
	Type         domain.AuthEventType
	RegisteredAt time.Time

	once sync.Once
	done chan struct{}
	data *domain.EventData
	err  error
}

func newPending(id string, t domain.AuthEventType, now time.Time) *Pending {
	return &Pending{
		ID:           id,
		Type:         t,
		RegisteredAt: now,
		done:         make(chan struct{}),
	}
}

// Done is closed once the event has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the event settles or ctx ends. A ctx expiry does not
// settle the event; the caller decides whether to Cancel it.
func (p *Pending) Wait(ctx context.Context) (*domain.EventData, error) {
	select {
	case <-p.done:
		return p.data, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the event has settled.
func (p *Pending) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Pending) settle(data *domain.EventData, err error) bool {
	settled := false
	p.once.Do(func() {
		p.data, p.err = data, err
		close(p.done)
		settled = true
	})
	return settled
}
