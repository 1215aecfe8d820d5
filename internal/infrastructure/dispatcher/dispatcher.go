// Package dispatcher issues outbound JSON API calls. A newer call for the same
// method and path cancels the older one, and every call carries a bearer token
// resolved (and refreshed when close to expiry) just before it goes out.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"cms-service/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

type pendingRequest struct {
	id     uint64
	cancel context.CancelCauseFunc
	status domain.RequestStatus
}

type Dispatcher struct {
	baseURL  string
	http     *http.Client
	tokens   TokenSource
	log      *zap.Logger
	outcomes *prometheus.CounterVec
	optErr   error

	mu      sync.Mutex
	pending map[string]*pendingRequest
	nextID  uint64
}

type Option func(*Dispatcher)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.http = c
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(d *Dispatcher) {
		if ts != nil {
			d.tokens = ts
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics counts settled requests by method and outcome on reg. New fails
// when reg holds a conflicting collector under the same name.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(d *Dispatcher) {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cms_dispatcher_requests_total",
			Help: "Outbound API requests by method and outcome.",
		}, []string{"method", "outcome"})
		if err := reg.Register(cv); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				d.optErr = fmt.Errorf("register metrics: %w", err)
				return
			}
			cv = are.ExistingCollector.(*prometheus.CounterVec)
		}
		d.outcomes = cv
	}
}

// New returns a dispatcher rooted at baseURL. Paths passed to the call methods
// are appended to it verbatim.
func New(baseURL string, opts ...Option) (*Dispatcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("dispatcher: invalid base url %q", baseURL)
	}
	d := &Dispatcher{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		tokens:  StaticToken(""),
		log:     zap.NewNop(),
		pending: map[string]*pendingRequest{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.optErr != nil {
		return nil, fmt.Errorf("dispatcher: %w", d.optErr)
	}
	return d, nil
}

// Key is the dedup slot of a request.
func Key(method, path string) string {
	return strings.ToUpper(method) + ":" + path
}

type callConfig struct {
	header http.Header
	query  url.Values
}

type CallOption func(*callConfig)

// WithHeader adds a request header. Authorization is always owned by the token source.
func WithHeader(key, value string) CallOption {
	return func(c *callConfig) { c.header.Add(key, value) }
}

// WithQuery adds a query parameter. It does not take part in the dedup key.
func WithQuery(key, value string) CallOption {
	return func(c *callConfig) { c.query.Add(key, value) }
}

func (d *Dispatcher) Get(ctx context.Context, path string, out any, opts ...CallOption) error {
	return d.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (d *Dispatcher) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return d.Do(ctx, http.MethodPost, path, body, out, opts...)
}

func (d *Dispatcher) Put(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return d.Do(ctx, http.MethodPut, path, body, out, opts...)
}

func (d *Dispatcher) Patch(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return d.Do(ctx, http.MethodPatch, path, body, out, opts...)
}

func (d *Dispatcher) Delete(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return d.Do(ctx, http.MethodDelete, path, body, out, opts...)
}

// Do sends one request. body is JSON-encoded unless it is an io.Reader; a 2xx
// response body is decoded into out when out is non-nil. Every error is a
// *RequestError matching either ErrAborted or ErrFailed.
func (d *Dispatcher) Do(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	method = strings.ToUpper(method)
	key := Key(method, path)
	cfg := callConfig{header: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	payload, err := encodeBody(body)
	if err != nil {
		return d.failed(method, key, 0, "", fmt.Errorf("encode body: %w", err))
	}

	reqCtx, p := d.register(ctx, key)
	defer p.cancel(nil)

	token := d.tokens.AccessToken(reqCtx)

	req, err := http.NewRequestWithContext(reqCtx, method, d.resolve(path, cfg.query), payload)
	if err != nil {
		d.settle(key, p, domain.RequestStatusFailed)
		return d.failed(method, key, 0, "", fmt.Errorf("create request: %w", err))
	}
	for k, vs := range cfg.header {
		req.Header[k] = vs
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return d.settleError(reqCtx, method, key, p, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return d.settleError(reqCtx, method, key, p, resp.StatusCode, string(excerpt), &HTTPStatusError{Code: resp.StatusCode})
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return d.settleError(reqCtx, method, key, p, resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
		}
	}

	if !d.settle(key, p, domain.RequestStatusSuccess) {
		return d.aborted(method, key, ErrSuperseded)
	}
	d.observe(method, domain.RequestStatusSuccess)
	return nil
}

// Pending reports the status of the in-flight request registered for key.
func (d *Dispatcher) Pending(key string) (domain.RequestStatus, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[key]
	if !ok {
		return "", false
	}
	return p.status, true
}

// InFlight returns the number of registered requests.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// register cancels the previous holder of key and installs a new one in a single step.
func (d *Dispatcher) register(ctx context.Context, key string) (context.Context, *pendingRequest) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.pending[key]; ok {
		prev.status = domain.RequestStatusAborted
		prev.cancel(ErrSuperseded)
	}
	d.nextID++
	p := &pendingRequest{id: d.nextID, cancel: cancel, status: domain.RequestStatusPending}
	d.pending[key] = p
	return reqCtx, p
}

// settle removes p from the map if it still owns key. It reports false when p
// was superseded in the meantime.
func (d *Dispatcher) settle(key string, p *pendingRequest, st domain.RequestStatus) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.status == domain.RequestStatusAborted {
		return false
	}
	p.status = st
	if cur, ok := d.pending[key]; ok && cur.id == p.id {
		delete(d.pending, key)
	}
	return true
}

func (d *Dispatcher) settleError(ctx context.Context, method, key string, p *pendingRequest, code int, body string, cause error) error {
	if reason := cancellation(ctx); reason != nil {
		d.settle(key, p, domain.RequestStatusAborted)
		return d.aborted(method, key, reason)
	}
	if !d.settle(key, p, domain.RequestStatusFailed) {
		return d.aborted(method, key, ErrSuperseded)
	}
	return d.failed(method, key, code, body, cause)
}

func (d *Dispatcher) aborted(method, key string, reason error) error {
	d.log.Info("dispatcher.aborted", zap.String("key", key), zap.NamedError("reason", reason))
	d.observe(method, domain.RequestStatusAborted)
	return &RequestError{Status: domain.RequestStatusAborted, Key: key, Err: reason}
}

func (d *Dispatcher) failed(method, key string, code int, body string, cause error) error {
	d.log.Error("dispatcher.failed", zap.String("key", key), zap.Int("status", code), zap.Error(cause))
	d.observe(method, domain.RequestStatusFailed)
	return &RequestError{Status: domain.RequestStatusFailed, Key: key, StatusCode: code, Body: body, Err: cause}
}

func (d *Dispatcher) observe(method string, st domain.RequestStatus) {
	if d.outcomes != nil {
		d.outcomes.WithLabelValues(method, string(st)).Inc()
	}
}

func (d *Dispatcher) resolve(path string, query url.Values) string {
	raw := d.baseURL + path
	if len(query) == 0 {
		return raw
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return raw + sep + query.Encode()
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case io.Reader:
		return b, nil
	case []byte:
		return bytes.NewReader(b), nil
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(buf), nil
	}
}
