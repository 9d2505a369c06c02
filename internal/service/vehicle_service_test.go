package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rdw-proxy/internal/cache"
	"rdw-proxy/internal/rdw"
)

type datasetReply struct {
	status int
	body   string
}

type fakeRDW struct {
	server  *httptest.Server
	calls   atomic.Int32
	mu      sync.Mutex
	tokens  []string
	plates  []string
	replies map[string]datasetReply
}

func newFakeRDW(t *testing.T, replies map[string]datasetReply) *fakeRDW {
	t.Helper()
	f := &fakeRDW{replies: replies}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.mu.Lock()
		f.tokens = append(f.tokens, r.Header.Get("X-App-Token"))
		f.plates = append(f.plates, r.URL.Query().Get("kenteken"))
		f.mu.Unlock()

		reply, ok := f.replies[r.URL.Path]
		if !ok {
			reply = datasetReply{status: http.StatusOK, body: "[]"}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newTestService(f *fakeRDW, c cache.Cache, token string) *VehicleService {
	client := rdw.NewClient(rdw.Options{
		BaseURL:  f.server.URL,
		AppToken: token,
		Timeout:  2 * time.Second,
	})
	return NewVehicleService(client, rdw.DefaultResources(true), c, nil, zerolog.Nop())
}

const (
	basicRows = `[{"kenteken":"1ABC23","merk":"VOLKSWAGEN","voertuigidentificatienummer":"WVWZZZ1JZXW000001"}]`
	fuelRows  = `[{"kenteken":"1ABC23","brandstof_omschrijving":"Benzine"},{"kenteken":"1ABC23","brandstof_omschrijving":"Elektriciteit"}]`
	bodyRows  = `[{"kenteken":"1ABC23","carrosserietype":"AC"}]`
)

func TestLookupMergesAllDatasets(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path:    {http.StatusOK, basicRows},
		rdw.Fuel.Path:     {http.StatusOK, fuelRows},
		rdw.Body.Path:     {http.StatusOK, bodyRows},
		rdw.BodySpec.Path: {http.StatusOK, `[]`},
	})
	svc := newTestService(f, nil, "secret-token")

	res, err := svc.Lookup(context.Background(), "1-abc-23")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}

	if res.Cached {
		t.Errorf("expected fresh result")
	}
	if res.Plate != "1ABC23" {
		t.Errorf("plate = %q, want 1ABC23", res.Plate)
	}
	if res.Vehicle["merk"] != "VOLKSWAGEN" {
		t.Errorf("vehicle = %v", res.Vehicle)
	}
	if len(res.Fuel) != 2 {
		t.Errorf("fuel entries = %d, want 2", len(res.Fuel))
	}
	if res.VIN == nil || *res.VIN != "WVWZZZ1JZXW000001" {
		t.Errorf("vin = %v", res.VIN)
	}
	if res.Body["carrosserietype"] != "AC" {
		t.Errorf("body = %v", res.Body)
	}
	if res.BodySpec != nil {
		t.Errorf("body spec = %v, want nil", res.BodySpec)
	}

	if got := f.calls.Load(); got != 4 {
		t.Errorf("upstream calls = %d, want 4", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tok := range f.tokens {
		if tok != "secret-token" {
			t.Errorf("request %d token = %q", i, tok)
		}
		if f.plates[i] != "1ABC23" {
			t.Errorf("request %d plate = %q", i, f.plates[i])
		}
	}
}

func TestLookupEmptyBasicIsNotFound(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path: {http.StatusOK, `[]`},
		rdw.Fuel.Path:  {http.StatusOK, fuelRows},
	})
	svc := newTestService(f, nil, "")

	_, err := svc.Lookup(context.Background(), "1ABC23")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup() error = %v, want ErrNotFound", err)
	}
	var nf *PlateNotFoundError
	if !errors.As(err, &nf) || nf.Plate != "1ABC23" {
		t.Fatalf("expected PlateNotFoundError for 1ABC23, got %v", err)
	}
}

func TestLookupRequiredDatasetFailure(t *testing.T) {
	tests := []struct {
		name         string
		replies      map[string]datasetReply
		wantResource string
		wantStatus   int
	}{
		{
			name: "basic returns 500",
			replies: map[string]datasetReply{
				rdw.Basic.Path: {http.StatusInternalServerError, `{"message":"boom"}`},
				rdw.Fuel.Path:  {http.StatusOK, fuelRows},
			},
			wantResource: "basic",
			wantStatus:   http.StatusInternalServerError,
		},
		{
			name: "fuel returns 503",
			replies: map[string]datasetReply{
				rdw.Basic.Path: {http.StatusOK, basicRows},
				rdw.Fuel.Path:  {http.StatusServiceUnavailable, ``},
			},
			wantResource: "fuel",
			wantStatus:   http.StatusServiceUnavailable,
		},
		{
			name: "both fail reports basic first",
			replies: map[string]datasetReply{
				rdw.Basic.Path: {http.StatusBadGateway, ``},
				rdw.Fuel.Path:  {http.StatusForbidden, ``},
			},
			wantResource: "basic",
			wantStatus:   http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeRDW(t, tt.replies)
			svc := newTestService(f, nil, "")

			_, err := svc.Lookup(context.Background(), "1ABC23")
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("Lookup() error = %v, want ErrUpstream", err)
			}
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("expected *UpstreamError, got %T", err)
			}
			if ue.Resource != tt.wantResource || ue.Status != tt.wantStatus {
				t.Errorf("got %s/%d, want %s/%d", ue.Resource, ue.Status, tt.wantResource, tt.wantStatus)
			}
		})
	}
}

func TestLookupOptionalDatasetFailureDegrades(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path:    {http.StatusOK, basicRows},
		rdw.Fuel.Path:     {http.StatusOK, `[]`},
		rdw.Body.Path:     {http.StatusNotFound, `not here`},
		rdw.BodySpec.Path: {http.StatusInternalServerError, `{}`},
	})
	svc := newTestService(f, nil, "")

	res, err := svc.Lookup(context.Background(), "1ABC23")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.Body != nil || res.BodySpec != nil {
		t.Errorf("expected optional datasets absent, got %v / %v", res.Body, res.BodySpec)
	}
	if res.Fuel == nil || len(res.Fuel) != 0 {
		t.Errorf("fuel = %v, want empty non-nil slice", res.Fuel)
	}
}

func TestLookupMalformedBodyIsInternal(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path: {http.StatusOK, `{"not":"an array"}`},
		rdw.Fuel.Path:  {http.StatusOK, fuelRows},
	})
	svc := newTestService(f, nil, "")

	_, err := svc.Lookup(context.Background(), "1ABC23")
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("Lookup() error = %v, want ErrInternal", err)
	}
}

func TestLookupInvalidPlateSkipsUpstream(t *testing.T) {
	f := newFakeRDW(t, nil)
	svc := newTestService(f, nil, "")

	for _, raw := range []string{"", "   ", "--..//"} {
		_, err := svc.Lookup(context.Background(), raw)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Lookup(%q) error = %v, want ErrInvalidInput", raw, err)
		}
	}
	if got := f.calls.Load(); got != 0 {
		t.Fatalf("upstream calls = %d, want 0", got)
	}
}

func TestLookupServesSecondCallFromCache(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path: {http.StatusOK, basicRows},
		rdw.Fuel.Path:  {http.StatusOK, fuelRows},
	})
	svc := newTestService(f, cache.NewMemory(5*time.Minute), "")

	if _, err := svc.Lookup(context.Background(), "1ABC23"); err != nil {
		t.Fatalf("first Lookup() error = %v", err)
	}
	before := f.calls.Load()

	res, err := svc.Lookup(context.Background(), "1-abc-23")
	if err != nil {
		t.Fatalf("second Lookup() error = %v", err)
	}
	if !res.Cached {
		t.Errorf("expected cached result")
	}
	if got := f.calls.Load(); got != before {
		t.Errorf("upstream calls went from %d to %d on cache hit", before, got)
	}
}

func TestLookupDoesNotCacheNegativeResults(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path: {http.StatusOK, `[]`},
		rdw.Fuel.Path:  {http.StatusOK, `[]`},
	})
	c := cache.NewMemory(5 * time.Minute)
	svc := newTestService(f, c, "")

	for i := 0; i < 2; i++ {
		if _, err := svc.Lookup(context.Background(), "ZZ99ZZ"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup() error = %v, want ErrNotFound", err)
		}
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("cache entries = %d, want 0", got)
	}
	if got := f.calls.Load(); got != 8 {
		t.Fatalf("upstream calls = %d, want 8", got)
	}
}

// barrierFetcher only answers once every dataset request is in flight, so a
// sequential fan-out would never complete.
type barrierFetcher struct {
	wg      sync.WaitGroup
	results map[string]rdw.Result
}

func (b *barrierFetcher) Fetch(_ context.Context, res rdw.Resource, _ string) rdw.Result {
	b.wg.Done()
	b.wg.Wait()
	r := b.results[res.Name]
	r.Resource = res
	return r
}

func TestLookupFetchesConcurrentlyAndReportsTransportFailure(t *testing.T) {
	resources := rdw.DefaultResources(true)
	b := &barrierFetcher{results: map[string]rdw.Result{
		"basic":     {Status: http.StatusOK, Body: []byte(basicRows)},
		"fuel":      {Status: rdw.StatusTransportFailure, Err: errors.New("dial tcp: connection refused")},
		"body":      {Status: http.StatusOK, Body: []byte(bodyRows)},
		"body_spec": {Status: http.StatusOK, Body: []byte(`[]`)},
	}}
	b.wg.Add(len(resources))
	svc := NewVehicleService(b, resources, nil, nil, zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(context.Background(), "1ABC23")
		done <- err
	}()

	select {
	case err := <-done:
		var ue *UpstreamError
		if !errors.As(err, &ue) {
			t.Fatalf("expected *UpstreamError, got %v", err)
		}
		if ue.Resource != "fuel" || ue.Status != rdw.StatusTransportFailure {
			t.Fatalf("got %s/%d, want fuel/%d", ue.Resource, ue.Status, rdw.StatusTransportFailure)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lookup did not complete; datasets are not fetched concurrently")
	}
}

func TestLookupWithoutBodyDatasets(t *testing.T) {
	f := newFakeRDW(t, map[string]datasetReply{
		rdw.Basic.Path: {http.StatusOK, basicRows},
		rdw.Fuel.Path:  {http.StatusOK, fuelRows},
	})
	client := rdw.NewClient(rdw.Options{BaseURL: f.server.URL, Timeout: time.Second})
	svc := NewVehicleService(client, rdw.DefaultResources(false), nil, nil, zerolog.Nop())

	res, err := svc.Lookup(context.Background(), "1ABC23")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.Body != nil {
		t.Errorf("body = %v, want nil", res.Body)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}
