package sources

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 10 * time.Second

// httpBackend is the HTTP plumbing shared by the remote backends: a resty client decoding with
// go-json and an optional request rate limit.
type httpBackend struct {
	client  *resty.Client
	limiter *rate.Limiter
}

func newHTTPBackend(baseURL string, timeoutSeconds int, rateLimit float64, httpClient *http.Client) *httpBackend {
	client := resty.New()
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	}

	timeout := defaultHTTPTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}

	client.
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	b := &httpBackend{client: client}
	if rateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(rateLimit), 1)
	}
	return b
}

func (b *httpBackend) insecure() {
	b.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
}

// get waits for the rate limiter, then decodes the JSON body of a GET into result.
func (b *httpBackend) get(ctx context.Context, req *resty.Request, url string, result any) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	resp, err := req.SetContext(ctx).SetResult(result).Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode(), resp.Request.URL)
	}
	return nil
}
