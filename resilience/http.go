package resilience

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jonwraymond/failguard/observe"
)

// HTTPCompositePolicy is a CompositePolicy with HTTP-specific timeouts.
type HTTPCompositePolicy struct {
	CompositePolicy

	// HTTPTimeout bounds the whole guarded call, retries included. It is
	// applied as the outermost cooperative timeout.
	// Default: 0 (no outer bound)
	HTTPTimeout time.Duration

	// ConnectTimeout bounds connection establishment for clients built by
	// HTTPClient and RestyClient.
	// Default: 0 (no dial timeout)
	ConnectTimeout time.Duration
}

// Validate validates the embedded composite and the HTTP timeouts.
func (p *HTTPCompositePolicy) Validate() error {
	if err := p.CompositePolicy.Validate(); err != nil {
		return err
	}
	if p.HTTPTimeout < 0 {
		return invalidf("http timeout must be >= 0, got %v", p.HTTPTimeout)
	}
	if p.ConnectTimeout < 0 {
		return invalidf("connect timeout must be >= 0, got %v", p.ConnectTimeout)
	}
	return nil
}

// Transport returns a clone of http.DefaultTransport whose dialer honors
// ConnectTimeout.
func (p *HTTPCompositePolicy) Transport() *http.Transport {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if p.ConnectTimeout > 0 {
		dialer := &net.Dialer{
			Timeout:   p.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}
		tr.DialContext = dialer.DialContext
		tr.TLSHandshakeTimeout = p.ConnectTimeout
	}
	return tr
}

// HTTPClient returns a client configured with ConnectTimeout. Request
// deadlines come from the context passed by the engine.
func (p *HTTPCompositePolicy) HTTPClient() *http.Client {
	return &http.Client{Transport: p.Transport()}
}

// RestyClient returns a resty client on top of HTTPClient.
func (p *HTTPCompositePolicy) RestyClient() *resty.Client {
	return resty.NewWithClient(p.HTTPClient())
}

// StatusError reports an HTTP response whose status should count as a
// failure for retry and circuit breaking.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("resilience: unexpected http status %s", e.Status)
	}
	return fmt.Sprintf("resilience: unexpected http status %d", e.StatusCode)
}

// CheckStatus returns a *StatusError for 5xx and 429 responses and nil
// otherwise.
func CheckStatus(code int, status string) error {
	if code >= http.StatusInternalServerError || code == http.StatusTooManyRequests {
		return &StatusError{StatusCode: code, Status: status}
	}
	return nil
}

// ExecuteHTTPWithPolicy runs op through the composite policy, bounded by
// HTTPTimeout.
//
// ConnectTimeout is not enforced here. It is applied by the dialer of the
// clients returned by p.HTTPClient and p.RestyClient, so op must issue its
// requests through one of them for the knob to take effect. Requests made
// with any other client are bounded only by HTTPTimeout and the per-attempt
// Timeout policy.
func ExecuteHTTPWithPolicy[T any](ctx context.Context, e *Engine, op Operation[T], p *HTTPCompositePolicy) (T, error) {
	var zero T
	if err := checkArgs(e, op == nil, p == nil); err != nil {
		return zero, err
	}
	if err := p.Validate(); err != nil {
		return zero, err
	}

	chain := compose(e, op, &p.CompositePolicy)
	if p.HTTPTimeout > 0 {
		inner := chain
		tp := TimeoutPolicy{Timeout: p.HTTPTimeout, Strategy: TimeoutCooperative}
		chain = func(ctx context.Context) (T, error) {
			return timeout(ctx, e, inner, tp)
		}
	}

	return execute(ctx, e, observe.ExecMeta{Policy: "http"}, chain)
}
