package breeze

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"optiongate/internal/domain"
)

// apiResponse is the Breeze response envelope. Success carries either a
// list of rows or a single object depending on the endpoint.
type apiResponse struct {
	Success json.RawMessage `json:"Success"`
	Status  int             `json:"Status"`
	Error   any             `json:"Error"`
}

func (r *apiResponse) err() error {
	switch v := r.Error.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return fmt.Errorf("breeze api error: %s", v)
	default:
		b, jerr := json.Marshal(v)
		if jerr != nil || string(b) == "null" {
			return nil
		}
		return fmt.Errorf("breeze api error: %s", string(b))
	}
}

// rows normalizes the Success payload into a row slice regardless of
// whether the endpoint returned one object or many.
func (r *apiResponse) rows() ([]domain.RawTick, error) {
	if len(r.Success) == 0 || string(r.Success) == "null" {
		return nil, nil
	}

	var list []domain.RawTick
	if err := json.Unmarshal(r.Success, &list); err == nil {
		return list, nil
	}

	var one domain.RawTick
	if err := json.Unmarshal(r.Success, &one); err != nil {
		return nil, fmt.Errorf("unexpected Success shape: %w", err)
	}
	return []domain.RawTick{one}, nil
}

func (r *apiResponse) row() (domain.RawTick, error) {
	list, err := r.rows()
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

const (
	feedBaseDelay = 1 * time.Second
	feedMaxDelay  = 60 * time.Second
)

func calculateFeedBackoff(retryCount int) time.Duration {
	// Cap retry count to prevent overflow (2^6 = 64 seconds > max 60s)
	if retryCount > 6 {
		return feedMaxDelay
	}
	delay := feedBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > feedMaxDelay {
		delay = feedMaxDelay
	}
	return delay
}
