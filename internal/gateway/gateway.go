// Package gateway is the single choke point for backend calls. It attaches
// the stored credentials to every request and tears the session down on the
// first unauthorized response.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/xtrntr/brokerclient/internal/session"
)

// Header names the backend reads credentials from
const (
	UsernameHeader  = "Username"
	PasswordHeader  = "Password"
	RequestIDHeader = "X-Request-Id"
)

// Navigator sends the user back to the unauthenticated entry point
type Navigator interface {
	ToEntry()
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func()

func (f NavigatorFunc) ToEntry() { f() }

// Config locates the backend
type Config struct {
	BaseURL   string
	HealthURL string // no /api prefix
	// HTTPClient replaces the default transport client, mostly for tests
	HTTPClient *http.Client
}

// Gateway dispatches calls on behalf of the domain client
type Gateway struct {
	api     *resty.Client
	health  *resty.Client
	session *session.Store
	nav     Navigator
	logger  *slog.Logger
	metrics *Metrics
}

// New builds a gateway bound to the given session handle
func New(cfg Config, store *session.Store, nav Navigator, logger *slog.Logger, metrics *Metrics) *Gateway {
	if nav == nil {
		nav = NavigatorFunc(func() {})
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	g := &Gateway{session: store, nav: nav, logger: logger, metrics: metrics}
	g.api = g.newClient(cfg.BaseURL, cfg.HTTPClient)
	g.health = g.newClient(cfg.HealthURL, cfg.HTTPClient)
	return g
}

func (g *Gateway) newClient(base string, hc *http.Client) *resty.Client {
	var c *resty.Client
	if hc != nil {
		c = resty.NewWithClient(hc)
	} else {
		c = resty.New()
	}
	return c.
		SetBaseURL(base).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{g.logger}).
		OnBeforeRequest(g.attachCredentials).
		OnAfterResponse(g.handleUnauthorized)
}

// attachCredentials runs before the request is built, so the headers are
// fixed before anything reaches the network
func (g *Gateway) attachCredentials(_ *resty.Client, r *resty.Request) error {
	identity, ok := g.session.Current()
	if ok && identity.Username != "" && identity.Password != "" {
		r.SetHeader(UsernameHeader, identity.Username)
		r.SetHeader(PasswordHeader, identity.Password)
	}
	r.SetHeader(RequestIDHeader, uuid.NewString())
	return nil
}

// handleUnauthorized runs before Execute returns, so no caller can observe
// the stale session after a 401
func (g *Gateway) handleUnauthorized(_ *resty.Client, resp *resty.Response) error {
	req := resp.Request
	g.metrics.observe(req.Method, resp.StatusCode())
	g.logger.Debug("backend call",
		"request_id", req.Header.Get(RequestIDHeader),
		"method", req.Method,
		"url", req.URL,
		"status", resp.StatusCode(),
		"duration", resp.Time(),
	)

	if resp.StatusCode() != http.StatusUnauthorized {
		return nil
	}

	// every 401 ends the session, whichever call drew it
	g.session.Clear(req.Context())
	g.metrics.Teardowns.Inc()
	g.logger.Warn("unauthorized response, session torn down",
		"request_id", req.Header.Get(RequestIDHeader), "url", req.URL)
	g.nav.ToEntry()
	return &APIError{Status: http.StatusUnauthorized, Message: messageFrom(resp.Body())}
}

// Call dispatches one API request and decodes a successful body into out.
// body and out may be nil.
func (g *Gateway) Call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return g.call(ctx, g.api, method, path, query, body, out)
}

// Health queries the health endpoint on the health base URL
func (g *Gateway) Health(ctx context.Context, out any) error {
	return g.call(ctx, g.health, http.MethodGet, "/health", nil, nil, out)
}

func (g *Gateway) call(ctx context.Context, c *resty.Client, method, path string, query url.Values, body, out any) error {
	req := c.R().SetContext(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr
		}
		g.metrics.observe(method, 0)
		g.logger.Warn("backend unreachable", "method", method, "path", path, "error", err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	if resp.IsError() {
		return &APIError{Status: resp.StatusCode(), Message: messageFrom(resp.Body())}
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// restyLogger routes resty's own diagnostics into slog
type restyLogger struct {
	logger *slog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
