package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header names used on every request.
const (
	TokenHeader     = "X-Token"
	RequestIDHeader = "X-Request-ID"
)

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "drivepi/0.1"

// Route identifies a logical backend route. The URL is the base URL and the
// route joined by a single slash.
type Route string

// Backend routes consumed by the client.
const (
	RouteAuth   Route = "auth"
	RouteDrives Route = "drives"
	RouteFiles  Route = "files"
)

// Dispatcher is the single entry point for backend requests. It holds only
// immutable configuration and is safe for concurrent use.
type Dispatcher struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher for the given base URL
// (e.g. "http://drivepi.local:8080/api").
func NewDispatcher(baseURL string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Dispatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		userAgent:  userAgent,
		logger:     logger,
	}
}

// BaseURL returns the base URL requests are sent to.
func (d *Dispatcher) BaseURL() string {
	return d.baseURL
}

// Do dispatches a request and decodes the 2xx JSON response into a T.
// An empty token sends the request anonymously.
func Do[T any](ctx context.Context, d *Dispatcher, method string, route Route, body any, token string) (T, error) {
	var out T
	if err := d.Dispatch(ctx, method, route, body, token, &out); err != nil {
		var zero T
		return zero, err
	}

	return out, nil
}

// Dispatch sends one request and decodes a 2xx JSON response into out
// (which may be nil to discard the body). Failures are returned as *Error,
// except context cancellation which is returned as the context error.
//
// For non-GET methods a non-nil body is encoded as JSON. GET never carries
// a body.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, route Route, body any, token string, out any) error {
	url := d.baseURL + "/" + string(route)
	reqID := uuid.NewString()

	req, err := d.newRequest(ctx, method, url, body, token, reqID)
	if err != nil {
		return err
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		d.logger.Warn("request failed to connect",
			slog.String("method", method),
			slog.String("route", string(route)),
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)

		return &Error{
			Status:    StatusTransport,
			Message:   MessageTransport,
			RequestID: reqID,
			Err:       fmt.Errorf("%w: %w", ErrTransport, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		d.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("route", string(route)),
			slog.Int("status", resp.StatusCode),
			slog.String("request_id", reqID),
		)

		return decodeBody(resp, reqID, out)
	}

	message := MessageUnknownError
	if text, readErr := io.ReadAll(resp.Body); readErr == nil {
		message = string(text)
	}

	d.logger.Debug("request rejected",
		slog.String("method", method),
		slog.String("route", string(route)),
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", reqID),
	)

	return &Error{
		Status:    resp.StatusCode,
		Message:   message,
		RequestID: reqID,
		Err:       classifyStatus(resp.StatusCode),
	}
}

// newRequest builds the HTTP request with the token, JSON body and tracing
// headers applied.
func (d *Dispatcher) newRequest(
	ctx context.Context, method, url string, body any, token, reqID string,
) (*http.Request, error) {
	var reader io.Reader

	hasBody := method != http.MethodGet && body != nil
	if hasBody {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("api: encoding request body: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	if token != "" {
		req.Header.Set(TokenHeader, token)
	}

	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set(RequestIDHeader, reqID)

	return req, nil
}

// decodeBody parses a successful response. When out is nil the body is
// discarded, but a non-empty body must still be valid JSON.
func decodeBody(resp *http.Response, reqID string, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err == nil {
		switch {
		case out != nil:
			err = json.Unmarshal(data, out)
		case len(bytes.TrimSpace(data)) > 0:
			var discard json.RawMessage
			err = json.Unmarshal(data, &discard)
		}
	}

	if err != nil {
		return &Error{
			Status:    resp.StatusCode,
			Message:   MessageInvalidJSON,
			RequestID: reqID,
			Err:       fmt.Errorf("%w: %w", ErrDecode, err),
		}
	}

	return nil
}
