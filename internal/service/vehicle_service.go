package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rdw-proxy/internal/cache"
	"rdw-proxy/internal/domain/vehicle"
	"rdw-proxy/internal/metrics"
	"rdw-proxy/internal/rdw"
	"rdw-proxy/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUpstream     = errors.New("upstream failure")
	ErrInternal     = errors.New("internal error")
)

// UpstreamError reports a required dataset that did not answer successfully.
// Status is rdw.StatusTransportFailure when no HTTP status was received.
type UpstreamError struct {
	Resource string
	Status   int
}

func (e *UpstreamError) Error() string {
	if e.Status == rdw.StatusTransportFailure {
		return fmt.Sprintf("%s: %s request failed", ErrUpstream, e.Resource)
	}
	return fmt.Sprintf("%s: %s returned status %d", ErrUpstream, e.Resource, e.Status)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// PlateNotFoundError is returned when RDW has no vehicle registered for Plate.
type PlateNotFoundError struct {
	Plate string
}

func (e *PlateNotFoundError) Error() string {
	return fmt.Sprintf("%s: no vehicle for plate %s", ErrNotFound, e.Plate)
}

func (e *PlateNotFoundError) Unwrap() error { return ErrNotFound }

const vinField = "voertuigidentificatienummer"

// Fetcher queries a single dataset. *rdw.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, res rdw.Resource, plate string) rdw.Result
}

type VehicleService struct {
	fetcher   Fetcher
	resources []rdw.Resource
	cache     cache.Cache
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewVehicleService(
	fetcher Fetcher,
	resources []rdw.Resource,
	c cache.Cache,
	m *metrics.Metrics,
	log zerolog.Logger,
) *VehicleService {
	return &VehicleService{
		fetcher:   fetcher,
		resources: resources,
		cache:     c,
		metrics:   m,
		log:       log,
	}
}

// Lookup normalizes rawPlate and returns the merged RDW record for it,
// served from cache when a fresh entry exists.
func (s *VehicleService) Lookup(ctx context.Context, rawPlate string) (*vehicle.LookupResult, error) {
	plate := utils.NormalizePlate(rawPlate)
	if plate == "" {
		s.metrics.RecordLookup("invalid")
		return nil, fmt.Errorf("%w: plate is empty after normalization", ErrInvalidInput)
	}

	key := cache.Key(plate)
	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, key); ok {
			s.metrics.RecordCache(true)
			s.metrics.RecordLookup("cache_hit")
			s.log.Debug().Str("plate", plate).Msg("served vehicle from cache")
			return &vehicle.LookupResult{Cached: true, Record: rec}, nil
		}
		s.metrics.RecordCache(false)
	}

	results := s.fetchAll(ctx, plate)

	rec, err := s.merge(plate, results)
	if err != nil {
		s.metrics.RecordLookup(outcome(err))
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, key, rec)
	}
	s.metrics.RecordLookup("ok")

	s.log.Info().
		Str("plate", plate).
		Int("fuel_entries", len(rec.Fuel)).
		Bool("body", rec.Body != nil).
		Msg("vehicle lookup completed")

	return &vehicle.LookupResult{Cached: false, Record: rec}, nil
}

// fetchAll queries every configured dataset concurrently and waits for all of
// them. A failing dataset never cancels the others.
func (s *VehicleService) fetchAll(ctx context.Context, plate string) map[string]rdw.Result {
	slots := make([]rdw.Result, len(s.resources))

	var g errgroup.Group
	for i, res := range s.resources {
		i, res := i, res
		g.Go(func() error {
			slots[i] = s.fetcher.Fetch(ctx, res, plate)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]rdw.Result, len(slots))
	for _, r := range slots {
		s.metrics.RecordUpstream(r.Resource.Name, r.Status, r.Duration)
		results[r.Resource.Name] = r
	}
	return results
}

func (s *VehicleService) merge(plate string, results map[string]rdw.Result) (*vehicle.Record, error) {
	for _, res := range s.resources {
		if !res.Required {
			continue
		}
		r := results[res.Name]
		if r.OK() {
			continue
		}
		s.log.Warn().
			Err(r.Err).
			Str("plate", plate).
			Str("resource", res.Name).
			Int("status", r.Status).
			Str("body", r.Snippet()).
			Msg("required RDW dataset failed")
		return nil, &UpstreamError{Resource: res.Name, Status: r.Status}
	}

	rows := make(map[string][]vehicle.Row, len(s.resources))
	for _, res := range s.resources {
		r := results[res.Name]
		if !r.OK() {
			s.log.Debug().
				Err(r.Err).
				Str("plate", plate).
				Str("resource", res.Name).
				Int("status", r.Status).
				Msg("optional RDW dataset unavailable")
			rows[res.Name] = []vehicle.Row{}
			continue
		}

		decoded, err := rdw.DecodeRows(r.Body)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("plate", plate).
				Str("resource", res.Name).
				Str("body", r.Snippet()).
				Msg("unexpected RDW response shape")
			return nil, fmt.Errorf("%w: %s: %v", ErrInternal, res.Name, err)
		}
		rows[res.Name] = decoded
	}

	primary := first(rows[rdw.Basic.Name])
	if primary == nil {
		return nil, &PlateNotFoundError{Plate: plate}
	}

	fuel := rows[rdw.Fuel.Name]
	if fuel == nil {
		fuel = []vehicle.Row{}
	}

	return &vehicle.Record{
		Plate:    plate,
		VIN:      stringField(primary, vinField),
		Vehicle:  primary,
		Fuel:     fuel,
		Body:     first(rows[rdw.Body.Name]),
		BodySpec: first(rows[rdw.BodySpec.Name]),
	}, nil
}

func first(rows []vehicle.Row) vehicle.Row {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func stringField(row vehicle.Row, name string) *string {
	v, ok := row[name].(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUpstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
