package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"optiongate/internal/domain"
	"optiongate/internal/infra"
)

// PlaceOrder submits a single leg through the pacing lane and journals the
// outcome. The returned result always carries the caller's leg index.
func (s *Session) PlaceOrder(ctx context.Context, leg domain.OrderLeg) domain.LegResult {
	return s.placeLeg(ctx, 0, leg)
}

// SquareOff exits a position by submitting the reversed leg.
func (s *Session) SquareOff(ctx context.Context, leg domain.OrderLeg) domain.LegResult {
	return s.placeLeg(ctx, 0, leg.Reversed())
}

// PlaceStrategy submits all legs of a multi-leg strategy concurrently. Each
// leg's broker call is still serialized by the shared pacing queue; the
// fan-out buys overlap of validation and queue waiting, and guarantees one
// slow leg cannot starve its siblings of admission order fairness.
//
// The result slice always has exactly len(legs) entries, ordered by input
// index. A failing leg becomes that leg's recorded error and never aborts
// the others.
func (s *Session) PlaceStrategy(ctx context.Context, legs []domain.OrderLeg) ([]domain.LegResult, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return []domain.LegResult{}, nil
	}

	var mu sync.Mutex
	results := make([]domain.LegResult, len(legs))
	finished := make([]bool, len(legs))

	var wg sync.WaitGroup
	for i, leg := range legs {
		wg.Add(1)
		go func(idx int, l domain.OrderLeg) {
			defer wg.Done()
			res := s.placeLeg(ctx, idx, l)
			mu.Lock()
			results[idx] = res
			finished[idx] = true
			mu.Unlock()
		}(i, leg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.joinTimeout):
		slog.Warn("strategy join timeout", slog.Int("legs", len(legs)))
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]domain.LegResult, len(legs))
	copy(out, results)
	for i := range out {
		if !finished[i] {
			out[i] = domain.LegResult{
				LegIndex: i,
				Success:  false,
				Error:    (&domain.PacingTimeoutError{Wait: s.joinTimeout}).Error(),
			}
		}
	}
	return out, nil
}

// placeLeg performs the full single-leg submission: normalize, validate,
// paced broker call, journal. Every failure is contained in the result.
func (s *Session) placeLeg(ctx context.Context, idx int, leg domain.OrderLeg) domain.LegResult {
	res := domain.LegResult{LegIndex: idx}

	if err := s.ensureConnected(); err != nil {
		res.Error = err.Error()
		return res
	}

	leg.Normalize()
	if err := leg.Validate(); err != nil {
		res.Error = err.Error()
		s.journalLeg(leg, res)
		return res
	}

	v, err := s.call("place_order", true, func() (any, error) {
		return s.broker.PlaceOrder(ctx, leg)
	})
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Success = true
		res.OrderID = v.(string)
		infra.GlobalMetrics.RecordOrderPlaced()
	}

	s.journalLeg(leg, res)
	return res
}

func (s *Session) journalLeg(leg domain.OrderLeg, res domain.LegResult) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(leg, res); err != nil {
		slog.Warn("order journal write failed", slog.Any("error", err))
	}
}
