// Package session owns the authentication token lifecycle: loading it from
// persistent storage, validating it against the backend, persisting
// changes, and clearing it when the backend rejects it.
//
// Store is the only writer of the token slot. Every other component reaches
// the backend through Store.Dispatch or Do, which attach the token and turn
// an authorization failure into a local logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/drivepi/drivepi-go/internal/api"
)

var (
	// ErrNotLoggedIn is returned by authenticated calls made without a token.
	ErrNotLoggedIn = errors.New("session: not logged in")
	// ErrBadCredentials is returned by Login when the backend answers 401.
	ErrBadCredentials = errors.New("incorrect credentials")
	// ErrWatchUnsupported is returned by Watch when the token storage
	// cannot report external changes.
	ErrWatchUnsupported = errors.New("session: token storage cannot be watched")
)

// TokenStorage is the persistent slot holding the raw token. Load returns ""
// when the slot is empty.
type TokenStorage interface {
	Load() (string, error)
	Store(token string) error
	Clear() error
}

// watchableStorage is implemented by storage that can report changes made
// by other processes.
type watchableStorage interface {
	Watch(ctx context.Context, logger *slog.Logger, onChange func(token string)) error
}

// Store holds the current token and session state. Safe for concurrent use;
// the mutex is never held across a network call.
type Store struct {
	dispatcher *api.Dispatcher
	storage    TokenStorage
	logger     *slog.Logger

	// validations collapses concurrent Validate calls for the same token
	// into one request.
	validations singleflight.Group

	mu        sync.Mutex
	token     string
	state     State
	expiry    time.Time
	listeners []func(State)
}

// New creates a Store and reads the persisted token once. A present token
// starts the store in Checking; call Validate to confirm it.
func New(storage TokenStorage, dispatcher *api.Dispatcher, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	token, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("session: loading token: %w", err)
	}

	s := &Store{
		dispatcher: dispatcher,
		storage:    storage,
		logger:     logger,
		token:      token,
		state:      Unauthenticated,
	}

	if token != "" {
		s.state = Checking
	}

	logger.Debug("session loaded", slog.String("state", s.state.String()))

	return s, nil
}

// State returns the current session state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Expiry returns the token expiry reported by the backend, or the zero time
// if none is known.
func (s *Store) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.expiry
}

// OnChange registers fn to be called after every state transition. Listeners
// run on the goroutine that caused the transition, without locks held.
func (s *Store) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, fn)
}

// SetToken is the only way to change the token. A non-empty token is
// persisted and the session becomes Authenticated; "" clears storage and
// the session becomes Unauthenticated.
//
// Storage failures are returned. When storing a new token fails the session
// is left as it was; when clearing fails the in-memory token is dropped
// anyway so a rejected token is never kept as authenticated.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	changed, err := s.setTokenLocked(token)
	state := s.state
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		notify(listeners, state)
	}

	return err
}

// setTokenLocked applies a token change. Caller holds s.mu. Reports whether
// the in-memory state changed.
func (s *Store) setTokenLocked(token string) (bool, error) {
	if token == "" {
		changed := s.token != "" || s.state != Unauthenticated
		s.token = ""
		s.state = Unauthenticated
		s.expiry = time.Time{}

		if err := s.storage.Clear(); err != nil {
			return changed, fmt.Errorf("session: clearing token: %w", err)
		}

		return changed, nil
	}

	if err := s.storage.Store(token); err != nil {
		return false, fmt.Errorf("session: saving token: %w", err)
	}

	changed := s.token != token || s.state != Authenticated
	if s.token != token {
		s.expiry = time.Time{}
	}

	s.token = token
	s.state = Authenticated

	return changed, nil
}

// Validate confirms a token loaded from storage with GET auth. It only does
// work in the Checking state; in any other state it returns the current
// state. Concurrent calls for the same token share a single request.
//
// An invalid answer or any request failure clears the token. Cancellation
// of ctx leaves the session in Checking and returns the context error.
func (s *Store) Validate(ctx context.Context) (State, error) {
	s.mu.Lock()
	token, state := s.token, s.state
	s.mu.Unlock()

	if state != Checking {
		return state, nil
	}

	result, err, _ := s.validations.Do(token, func() (any, error) {
		return s.validate(ctx, token)
	})
	if err != nil {
		return s.State(), err
	}

	return result.(State), nil
}

func (s *Store) validate(ctx context.Context, token string) (State, error) {
	resp, err := api.Do[api.CheckResponse](ctx, s.dispatcher, http.MethodGet, api.RouteAuth, nil, token)
	if err != nil && ctx.Err() != nil {
		return Checking, fmt.Errorf("session: validating token: %w", err)
	}

	s.mu.Lock()

	// Login or an external change replaced the token while we were
	// waiting; the answer is about a token we no longer hold.
	if s.token != token || s.state != Checking {
		state := s.state
		s.mu.Unlock()

		return state, nil
	}

	if err == nil && resp.Valid {
		s.state = Authenticated
		if resp.ExpiryTime != nil {
			s.expiry = time.UnixMilli(*resp.ExpiryTime)
		}

		listeners := s.listeners
		s.mu.Unlock()

		s.logger.Info("session token confirmed")
		notify(listeners, Authenticated)

		return Authenticated, nil
	}

	if err != nil {
		s.logger.Warn("session check failed, logging out",
			slog.Int("status", api.StatusOf(err)),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("session token no longer valid, logging out")
	}

	_, clearErr := s.setTokenLocked("")
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, Unauthenticated)

	if clearErr != nil {
		return Unauthenticated, clearErr
	}

	return Unauthenticated, nil
}

// Login exchanges credentials for a token with POST auth and stores it.
// The login request itself never carries a token.
func (s *Store) Login(ctx context.Context, username, password string) error {
	s.logger.Info("login started", slog.String("username", username))

	resp, err := api.Do[api.AuthResponse](ctx, s.dispatcher, http.MethodPost, api.RouteAuth,
		api.LoginRequest{Username: username, Password: password}, "")
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("%w: %w", ErrBadCredentials, err)
		}

		return fmt.Errorf("session: login: %w", err)
	}

	if resp.Token == "" {
		return errors.New("session: login response did not include a token")
	}

	if err := s.SetToken(resp.Token); err != nil {
		return err
	}

	s.mu.Lock()
	if s.token == resp.Token {
		s.expiry = time.UnixMilli(resp.ExpiryTime)
	}
	s.mu.Unlock()

	s.logger.Info("login successful", slog.String("username", username))

	return nil
}

// Logout asks the backend to invalidate the token (DELETE auth) and then
// clears it locally no matter what the backend said. Backend failures are
// logged; only a failure to clear local storage is returned.
func (s *Store) Logout(ctx context.Context) (err error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	defer func() {
		if clearErr := s.SetToken(""); clearErr != nil {
			err = clearErr
		}
	}()

	if token == "" {
		s.logger.Info("logout: no token held (already logged out)")
		return nil
	}

	if dErr := s.dispatcher.Dispatch(ctx, http.MethodDelete, api.RouteAuth, nil, token, nil); dErr != nil {
		s.logger.Warn("logout: server did not confirm token invalidation",
			slog.Int("status", api.StatusOf(dErr)),
			slog.String("error", dErr.Error()),
		)
	}

	s.logger.Info("logout complete")

	return nil
}

// Dispatch sends an authenticated request with the current token and decodes
// the response into out. When the backend answers 401 the token that was
// sent is cleared, so one rejected call is enough to end the session.
func (s *Store) Dispatch(ctx context.Context, method string, route api.Route, body, out any) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return ErrNotLoggedIn
	}

	err := s.dispatcher.Dispatch(ctx, method, route, body, token, out)
	if err == nil || !errors.Is(err, api.ErrUnauthorized) {
		return err
	}

	s.logger.Warn("backend rejected session token, logging out",
		slog.String("method", method),
		slog.String("route", string(route)),
	)

	if clearErr := s.dropToken(token); clearErr != nil {
		return errors.Join(err, clearErr)
	}

	return err
}

// dropToken clears the session if it still holds token. A newer token set
// by a concurrent login is left alone.
func (s *Store) dropToken(token string) error {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return nil
	}

	changed, err := s.setTokenLocked("")
	listeners := s.listeners
	s.mu.Unlock()

	if changed {
		notify(listeners, Unauthenticated)
	}

	return err
}

// Do is the typed form of Store.Dispatch.
func Do[T any](ctx context.Context, s *Store, method string, route api.Route, body any) (T, error) {
	var out T
	if err := s.Dispatch(ctx, method, route, body, &out); err != nil {
		var zero T
		return zero, err
	}

	return out, nil
}

// Watch follows changes other processes make to the token storage until ctx
// is canceled. A cleared slot logs this session out; a different token is
// adopted in the Checking state and must be validated again. The store's
// own writes are recognized and ignored. Nothing is written to storage.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.storage.(watchableStorage)
	if !ok {
		return ErrWatchUnsupported
	}

	return w.Watch(ctx, s.logger, s.adopt)
}

// adopt mirrors an external change of the token slot.
func (s *Store) adopt(token string) {
	s.mu.Lock()
	if token == s.token {
		s.mu.Unlock()
		return
	}

	if token == "" {
		s.logger.Info("token removed by another process, logging out")
		s.state = Unauthenticated
	} else {
		s.logger.Info("token replaced by another process, revalidating")
		s.state = Checking
	}

	s.token = token
	s.expiry = time.Time{}
	state := s.state
	listeners := s.listeners
	s.mu.Unlock()

	notify(listeners, state)
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
