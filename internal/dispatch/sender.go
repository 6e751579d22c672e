package dispatch

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// Sender is the provider-specific transport, treated as an opaque external
// dependency. A nil error means the message was accepted.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// SimulatedSender stands in for a real provider; it fails a configurable
// fraction of sends so runs exercise the failure path end to end.
type SimulatedSender struct {
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulatedSender(failureRate float64, seed int64) *SimulatedSender {
	return &SimulatedSender{
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedSender) Send(ctx context.Context, phone, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(1))
	}
	if s.rng.Float64() < s.FailureRate {
		return fmt.Errorf("simulated provider rejection for %s", phone)
	}
	return nil
}
