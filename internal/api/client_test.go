package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDispatcher creates a Dispatcher pointing at the given httptest server.
func newTestDispatcher(t *testing.T, url string) *Dispatcher {
	t.Helper()

	return NewDispatcher(url, http.DefaultClient, "test-agent", slog.Default())
}

// closedServerURL returns the URL of a server that has already shut down,
// so every request fails at the transport level.
func closedServerURL(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	return url
}

func TestDo_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"valid":true,"expiry_time":1700000000000}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL+"/api/")
	resp, err := Do[CheckResponse](context.Background(), d, http.MethodGet, RouteAuth, nil, "tok")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	require.NotNil(t, resp.ExpiryTime)
	assert.Equal(t, int64(1700000000000), *resp.ExpiryTime)
}

func TestDo_TokenHeader(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		present bool
	}{
		{"with token", "secret-token", true},
		{"anonymous", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, present := r.Header[TokenHeader]
				assert.Equal(t, tt.present, present)
				assert.Equal(t, tt.token, r.Header.Get(TokenHeader))
				assert.Empty(t, r.Header.Get("Cookie"))
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			d := newTestDispatcher(t, srv.URL)
			require.NoError(t, d.Dispatch(context.Background(), http.MethodGet, RouteDrives, nil, tt.token, nil))
		})
	}
}

func TestDo_JSONBodyForNonGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ListRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "docs/img", req.Path)
		assert.Equal(t, "/mnt/root/a", req.DrivePath)

		_, _ = w.Write([]byte(`{"files":[{"name":"a.txt","size":12,"permissions":420}],"folders":[]}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	resp, err := Do[FilesResponse](context.Background(), d, http.MethodPost, RouteFiles,
		ListRequest{Path: "docs/img", DrivePath: "/mnt/root/a"}, "tok")
	require.NoError(t, err)
	require.Len(t, resp.Files, 1)
	assert.Equal(t, "a.txt", resp.Files[0].Name)
	assert.Equal(t, uint64(12), resp.Files[0].Size)
	assert.Equal(t, uint32(420), resp.Files[0].Permissions)
	assert.Empty(t, resp.Folders)
}

func TestDo_GetNeverSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Type"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Empty(t, data)

		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	err := d.Dispatch(context.Background(), http.MethodGet, RouteDrives, map[string]string{"x": "y"}, "", nil)
	require.NoError(t, err)
}

func TestDo_NilBodyOmitsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	require.NoError(t, d.Dispatch(context.Background(), http.MethodDelete, RouteAuth, nil, "tok", nil))
}

func TestDo_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	_, err := Do[DrivesResponse](context.Background(), d, http.MethodGet, RouteDrives, nil, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusCreated, apiErr.Status)
	assert.Equal(t, MessageInvalidJSON, apiErr.Message)
}

func TestDo_InvalidJSONDiscardedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	err := d.Dispatch(context.Background(), http.MethodPost, RouteDrives, DriveActionRequest{}, "tok", nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDo_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad request", http.StatusBadRequest, ErrBadRequest},
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", http.StatusForbidden, ErrForbidden},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"conflict", http.StatusConflict, ErrConflict},
		{"internal", http.StatusInternalServerError, ErrServer},
		{"teapot", http.StatusTeapot, ErrServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("server says " + strconv.Itoa(tt.status)))
			}))
			defer srv.Close()

			d := newTestDispatcher(t, srv.URL)
			err := d.Dispatch(context.Background(), http.MethodGet, RouteDrives, nil, "tok", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, "server says "+strconv.Itoa(tt.status), apiErr.Message)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestDo_UnreadableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Promise more bytes than we send, then hijack and close the
		// connection so reading the body fails mid-way.
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()

		hj, ok := w.(http.Hijacker)
		require.True(t, ok)

		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	err := d.Dispatch(context.Background(), http.MethodGet, RouteDrives, nil, "tok", nil)
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, MessageUnknownError, apiErr.Message)
}

func TestDo_TransportFailure(t *testing.T) {
	d := newTestDispatcher(t, closedServerURL(t))

	_, err := Do[DrivesResponse](context.Background(), d, http.MethodGet, RouteDrives, nil, "tok")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StatusTransport, StatusOf(err))
	assert.Equal(t, MessageTransport, MessageOf(err))

	var opErr *net.OpError
	assert.ErrorAs(t, err, &opErr)
}

func TestDo_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newTestDispatcher(t, srv.URL)
	err := d.Dispatch(ctx, http.MethodGet, RouteDrives, nil, "tok", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestDo_TracingHeaders(t *testing.T) {
	seen := make(map[string]bool)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		id := r.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "request id reused")
		seen[id] = true

		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := newTestDispatcher(t, srv.URL)
	for range 3 {
		require.NoError(t, d.Dispatch(context.Background(), http.MethodGet, RouteDrives, nil, "", nil))
	}
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher("http://example.test/api/", nil, "", nil)
	assert.Equal(t, "http://example.test/api", d.BaseURL())
	assert.Equal(t, DefaultUserAgent, d.userAgent)
	assert.Equal(t, http.DefaultClient, d.httpClient)
	assert.NotNil(t, d.logger)
}

func TestError_ErrorString(t *testing.T) {
	t.Run("with request ID", func(t *testing.T) {
		err := &Error{Status: 404, Message: "missing", RequestID: "req-1", Err: ErrNotFound}
		assert.Equal(t, "api: HTTP 404 (request-id: req-1): missing", err.Error())
	})

	t.Run("without request ID", func(t *testing.T) {
		err := &Error{Status: 500, Message: "boom", Err: ErrServer}
		assert.Equal(t, "api: HTTP 500: boom", err.Error())
	})

	t.Run("transport", func(t *testing.T) {
		err := &Error{Status: StatusTransport, Message: MessageTransport, Err: ErrTransport}
		assert.Equal(t, "api: Failed to connect", err.Error())
	})
}

func TestStatusAndMessageOf(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &Error{Status: 401, Message: "nope", Err: ErrUnauthorized})

	assert.Equal(t, 401, StatusOf(wrapped))
	assert.Equal(t, "nope", MessageOf(wrapped))

	plain := errors.New("plain failure")
	assert.Equal(t, 0, StatusOf(plain))
	assert.Equal(t, "plain failure", MessageOf(plain))
	assert.Empty(t, MessageOf(nil))
}

func TestDriveItem_Helpers(t *testing.T) {
	mount := "/mnt/root/a"
	d := DriveItem{Name: "sda1", Mount: &mount}

	assert.True(t, d.IsMounted())
	assert.True(t, d.IsShared("/mnt/root"))
	assert.False(t, d.IsShared("/media"))
	assert.Equal(t, mount, d.MountPoint())
	assert.Equal(t, "sda1", d.DisplayName())

	d.Label = "Backup"
	assert.Equal(t, "Backup", d.DisplayName())

	var unmounted DriveItem
	assert.False(t, unmounted.IsMounted())
	assert.False(t, unmounted.IsShared(""))
	assert.Empty(t, unmounted.MountPoint())
}
