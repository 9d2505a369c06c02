package rdw

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"rdw-proxy/internal/domain/vehicle"
)

// StatusTransportFailure marks a request that never produced an HTTP status
// (DNS, refused connection, timeout).
const StatusTransportFailure = -1

const (
	plateParam     = "kenteken"
	appTokenHeader = "X-App-Token"
	snippetLimit   = 512
)

type Options struct {
	BaseURL  string
	AppToken string
	Timeout  time.Duration
}

type Client struct {
	http    *resty.Client
	baseURL string
	timeout time.Duration
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if opts.AppToken != "" {
		client.SetHeader(appTokenHeader, opts.AppToken)
	}

	return &Client{
		http:    client,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
	}
}

// Result is the outcome of a single dataset request.
type Result struct {
	Resource Resource
	Status   int
	Body     []byte
	Err      error
	Duration time.Duration
}

func (r Result) OK() bool {
	return r.Err == nil && r.Status >= 200 && r.Status < 300
}

// Snippet returns the start of the response body, for logs only.
func (r Result) Snippet() string {
	if len(r.Body) > snippetLimit {
		return string(r.Body[:snippetLimit])
	}
	return string(r.Body)
}

// Fetch queries one dataset for the plate. It never returns an error on its
// own; failures are reported through Result.
func (c *Client) Fetch(ctx context.Context, res Resource, plate string) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam(plateParam, plate).
		Get(c.baseURL + res.Path)

	result := Result{Resource: res, Duration: time.Since(start)}
	if err != nil {
		result.Status = StatusTransportFailure
		result.Err = fmt.Errorf("request %s: %w", res.Name, err)
		return result
	}

	result.Status = resp.StatusCode()
	result.Body = resp.Body()
	return result
}

// DecodeRows parses an RDW response body, which is always a JSON array of
// objects.
func DecodeRows(body []byte) ([]vehicle.Row, error) {
	var rows []vehicle.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if rows == nil {
		rows = []vehicle.Row{}
	}
	return rows, nil
}
