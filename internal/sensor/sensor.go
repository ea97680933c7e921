// Package sensor polls the external occupancy feed and applies it to the
// slot registry. The feed is the only writer of raw occupancy; reservation
// actions never touch it.
package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"visitor-parking-backend/config"
	"visitor-parking-backend/internal/lifecycle"
	"visitor-parking-backend/internal/metrics"
	"visitor-parking-backend/internal/model"
	"visitor-parking-backend/internal/poll"
	"visitor-parking-backend/internal/store"
)

// Reading is one slot's state as reported by the feed.
type Reading struct {
	SlotID string `json:"id"`
	State  int    `json:"estado"`
}

// Service polls the feed, maps raw state codes through the configured value
// lists and persists occupancy changes. Each cycle ends with the expiry
// sweep so stale reservations are retired at the same cadence.
type Service struct {
	cfg        *config.Config
	store      store.Store
	controller *lifecycle.Controller
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	runner     *poll.Runner
}

// NewService creates the occupancy poller.
func NewService(cfg *config.Config, s store.Store, controller *lifecycle.Controller) *Service {
	svc := &Service{
		cfg:        cfg,
		store:      s,
		controller: controller,
		client:     &http.Client{Timeout: 30 * time.Second},
		breaker:    newBreaker(),
	}
	svc.runner = poll.NewRunner("sensor", cfg.Sensor.Interval, svc.cycle)
	return svc
}

// newBreaker trips after three consecutive feed failures, so a gateway
// outage stops producing a request per tick until the cooldown elapses.
func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "occupancy-feed",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
}

// Run starts the polling loop. It returns when ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Sensor.Enabled {
		log.Println("sensor poller is disabled; not starting")
		return
	}
	log.Println("starting sensor poller...")
	s.runner.Run(ctx)
}

// TriggerRefresh requests an out-of-band poll, used after mutations when a
// fresher view is wanted before the next tick.
func (s *Service) TriggerRefresh() bool {
	return s.runner.TriggerNow()
}

// cycle is the poll.Fetch: it fetches the feed up front and defers the
// writes to the apply step, so a superseded cycle never touches the
// registry.
func (s *Service) cycle(ctx context.Context) (func(), error) {
	readings, err := s.fetchReadings(ctx)
	if err != nil {
		metrics.SensorPollCycles.WithLabelValues("error").Inc()
		return nil, err
	}
	return func() {
		s.apply(ctx, readings)
		s.controller.Sweep(ctx)
		metrics.SensorPollCycles.WithLabelValues("ok").Inc()
	}, nil
}

func (s *Service) fetchReadings(ctx context.Context) ([]Reading, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetchOnce(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Reading), nil
}

func (s *Service) fetchOnce(ctx context.Context) ([]Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Sensor.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	for key, value := range s.cfg.Sensor.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed response: %w", err)
	}

	var readings []Reading
	if err := json.Unmarshal(body, &readings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}
	return readings, nil
}

// apply writes each reading to the registry. Unknown slot ids are logged
// and skipped; a partial feed never aborts the cycle.
func (s *Service) apply(ctx context.Context, readings []Reading) {
	changed := 0
	for _, reading := range readings {
		occ, ok := s.mapState(reading.State)
		if !ok {
			log.Printf("unknown occupancy code %d for slot %s; skipping", reading.State, reading.SlotID)
			continue
		}
		didChange, err := s.store.SetOccupancy(ctx, reading.SlotID, occ)
		if err != nil {
			log.Printf("failed to apply occupancy for slot %s: %v", reading.SlotID, err)
			continue
		}
		if didChange {
			changed++
		}
	}
	if changed > 0 {
		log.Printf("sensor cycle applied %d occupancy changes", changed)
	}
}

// mapState resolves a raw feed code through the configured value lists.
func (s *Service) mapState(code int) (model.Occupancy, bool) {
	for _, v := range s.cfg.Sensor.FreeValues {
		if code == v {
			return model.OccupancyFree, true
		}
	}
	for _, v := range s.cfg.Sensor.OccupiedValues {
		if code == v {
			return model.OccupancyOccupied, true
		}
	}
	for _, v := range s.cfg.Sensor.ReservedValues {
		if code == v {
			return model.OccupancyReserved, true
		}
	}
	return 0, false
}
