package chartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasthttp"

	"github.com/seuros/scalex/internal/chart"
	"github.com/seuros/scalex/internal/logging"
)

const userAgent = "scalex-dashboard"

// Client talks to the performance API over fasthttp. It implements both
// Fetcher and BatchFetcher.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	timeout time.Duration
	retries int

	// initial retry interval, shortened in tests
	retryInterval time.Duration
}

// NewClient creates a client for the shared endpoint baseURL. Transport errors
// are retried up to retries times; HTTP-level failures are not.
func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		http: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 30 * time.Second,
		},
		baseURL:       baseURL,
		timeout:       timeout,
		retries:       retries,
		retryInterval: 200 * time.Millisecond,
	}
}

// BaseURL returns the shared endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchChart POSTs {base}/api/v1/chart/{id}.
func (c *Client) FetchChart(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &FetchError{ID: req.Identifier, Err: err}
	}

	endpoint := c.endpoint(req.BaseURL) + "/api/v1/chart/" + url.PathEscape(string(req.Identifier))
	status, respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, &FetchError{ID: req.Identifier, Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &FetchError{ID: req.Identifier, Status: status, Err: fmt.Errorf("unexpected status: %s", snippet(respBody))}
	}
	return decodeEnvelope(req.Identifier, status, respBody)
}

// FetchPage POSTs {base}/api/v1/page/{page} with every chart of the page.
// Requested charts missing from the response get a FetchError result.
func (c *Client) FetchPage(ctx context.Context, page chart.PageKey, baseURL string, reqs []Request) (map[chart.ID]Result, error) {
	if len(reqs) == 0 {
		return map[chart.ID]Result{}, nil
	}

	pageReq := PageRequest{
		Charts:            make([]chart.ID, 0, len(reqs)),
		DateRange:         reqs[0].DateRange,
		ComparisonEnabled: reqs[0].ComparisonEnabled,
		SegmentFilters:    reqs[0].SegmentFilters,
	}
	for _, r := range reqs {
		pageReq.Charts = append(pageReq.Charts, r.Identifier)
	}
	body, err := json.Marshal(pageReq)
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoint(baseURL) + "/api/v1/page/" + url.PathEscape(string(page))
	status, respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", page, err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch page %s: status %d: %s", page, status, snippet(respBody))
	}

	var env struct {
		Success bool                `json:"success"`
		Data    map[string]Envelope `json:"data"`
		Error   string              `json:"error"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("fetch page %s: malformed response %q: %w", page, snippet(respBody), err)
	}
	if !env.Success {
		return nil, fmt.Errorf("fetch page %s: %w: %s", page, ErrUnsuccessful, env.Error)
	}

	results := make(map[chart.ID]Result, len(env.Data))
	for key, chartEnv := range env.Data {
		id := chart.ID(key)
		data, err := envelopeData(id, status, chartEnv)
		results[id] = Result{Data: data, Err: err}
	}
	for _, r := range reqs {
		if _, ok := results[r.Identifier]; !ok {
			results[r.Identifier] = Result{Err: &FetchError{ID: r.Identifier, Status: status, Err: fmt.Errorf("%w: missing from batch response", ErrUnsuccessful)}}
		}
	}
	return results, nil
}

func (c *Client) endpoint(override string) string {
	if override != "" {
		return override
	}
	return c.baseURL
}

type response struct {
	status int
	body   []byte
}

// post performs the request, retrying transport errors with exponential backoff.
func (c *Client) post(ctx context.Context, endpoint string, body []byte) (int, []byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	resp, err := backoff.RetryWithData(func() (response, error) {
		if err := ctx.Err(); err != nil {
			return response{}, backoff.Permanent(err)
		}
		attempt++
		r, err := c.do(ctx, endpoint, body)
		if err != nil {
			logging.L().Debug("chart api transport error", "endpoint", endpoint, "attempt", attempt, "error", err)
			return response{}, err
		}
		return r, nil
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx))
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return 0, nil, permanent.Err
		}
		return 0, nil, err
	}
	return resp.status, resp.body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, body []byte) (response, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	req.SetBody(body)

	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return response{}, err
	}

	return response{
		status: resp.StatusCode(),
		body:   append([]byte(nil), resp.Body()...),
	}, nil
}
