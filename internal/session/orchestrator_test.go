package session

import (
	"context"
	"strings"
	"testing"

	"optiongate/internal/domain"
)

func strategyLegs() []domain.OrderLeg {
	return []domain.OrderLeg{
		{Symbol: "NIFTY", Strike: 21500, Right: "CE", Action: "sell", Quantity: 75, Expiry: "03-Sep-2026"},
		{Symbol: "NIFTY", Strike: 21600, Right: "CE", Action: "buy", Quantity: 75, Expiry: "03-Sep-2026"},
		{Symbol: "NIFTY", Strike: 21400, Right: "PE", Action: "sell", Quantity: 75, Expiry: "03-Sep-2026"},
	}
}

func TestPlaceStrategy_AllLegsSucceed(t *testing.T) {
	broker := &fakeBroker{}
	s := newTestSession(t, broker)
	connect(t, s)

	results, err := s.PlaceStrategy(context.Background(), strategyLegs())
	if err != nil {
		t.Fatalf("PlaceStrategy failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if res.LegIndex != i {
			t.Errorf("Result %d out of order: index %d", i, res.LegIndex)
		}
		if !res.Success || res.OrderID == "" {
			t.Errorf("Leg %d should succeed: %+v", i, res)
		}
	}
}

func TestPlaceStrategy_InvalidLegFailsAlone(t *testing.T) {
	broker := &fakeBroker{}
	s := newTestSession(t, broker)
	connect(t, s)

	legs := strategyLegs()
	legs[1].Quantity = 0 // leg 1 invalid, siblings untouched

	results, err := s.PlaceStrategy(context.Background(), legs)
	if err != nil {
		t.Fatalf("PlaceStrategy failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	if results[1].Success {
		t.Error("Invalid leg should fail")
	}
	if !strings.Contains(results[1].Error, "quantity") {
		t.Errorf("Expected descriptive quantity error, got %q", results[1].Error)
	}
	if !results[0].Success || !results[2].Success {
		t.Errorf("Sibling legs must proceed independently: %+v", results)
	}
}

func TestPlaceStrategy_BrokerRejectionContained(t *testing.T) {
	broker := &fakeBroker{failSymbol: "BANKNIFTY"}
	s := newTestSession(t, broker)
	connect(t, s)

	legs := strategyLegs()
	legs[0].Symbol = "BANKNIFTY"

	results, err := s.PlaceStrategy(context.Background(), legs)
	if err != nil {
		t.Fatalf("PlaceStrategy failed: %v", err)
	}
	if results[0].Success {
		t.Error("Rejected leg should be marked failed")
	}
	if results[0].Error == "" {
		t.Error("Rejected leg should carry the broker error")
	}
	if !results[1].Success || !results[2].Success {
		t.Error("Broker rejection of one leg must not abort siblings")
	}
}

func TestPlaceStrategy_EmptyLegs(t *testing.T) {
	s := newTestSession(t, &fakeBroker{})
	connect(t, s)

	results, err := s.PlaceStrategy(context.Background(), nil)
	if err != nil {
		t.Fatalf("Empty strategy is not an error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty result list, got %d", len(results))
	}
}

func TestPlaceStrategy_ResultsStableUnderConcurrency(t *testing.T) {
	broker := &fakeBroker{}
	s := newTestSession(t, broker)
	connect(t, s)

	legs := make([]domain.OrderLeg, 12)
	for i := range legs {
		legs[i] = domain.OrderLeg{
			Symbol: "NIFTY", Strike: 21000 + i*100, Right: "CE",
			Quantity: 75, Expiry: "03-Sep-2026",
		}
	}

	results, err := s.PlaceStrategy(context.Background(), legs)
	if err != nil {
		t.Fatalf("PlaceStrategy failed: %v", err)
	}
	if len(results) != len(legs) {
		t.Fatalf("Expected %d results, got %d", len(legs), len(results))
	}
	for i, res := range results {
		if res.LegIndex != i {
			t.Fatalf("Index order broken at %d: %+v", i, res)
		}
	}
}

// journalRecorder captures journal writes for assertions.
type journalRecorder struct {
	entries []domain.LegResult
}

func (j *journalRecorder) Record(leg domain.OrderLeg, res domain.LegResult) error {
	j.entries = append(j.entries, res)
	return nil
}

func TestPlaceOrder_Journaled(t *testing.T) {
	broker := &fakeBroker{}
	journal := &journalRecorder{}
	s := New(broker, journal, Config{Pacing: pacingFast()})
	t.Cleanup(s.Close)
	connect(t, s)

	s.PlaceOrder(context.Background(), domain.OrderLeg{
		Symbol: "NIFTY", Quantity: 75, Expiry: "03-Sep-2026",
	})
	s.PlaceOrder(context.Background(), domain.OrderLeg{Symbol: "NIFTY"}) // invalid

	if len(journal.entries) != 2 {
		t.Fatalf("Expected 2 journal entries, got %d", len(journal.entries))
	}
	if !journal.entries[0].Success || journal.entries[1].Success {
		t.Errorf("Journal outcomes wrong: %+v", journal.entries)
	}
}
