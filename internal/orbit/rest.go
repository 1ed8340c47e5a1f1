package orbit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/billchurch/bhyve-mqtt/internal/infrastructure/logging"
)

const (
	sessionPath = "/v1/session"
	devicesPath = "/v1/devices"

	// tokenHeader carries the session token on REST calls.
	tokenHeader = "orbit-session-token"

	// maxResponseSize bounds REST response bodies (10MB).
	maxResponseSize = 10 << 20
)

type sessionRequest struct {
	Session sessionCredentials `json:"session"`
}

type sessionCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token  string `json:"orbit_session_token"`
	UserID string `json:"user_id"`
}

// Authenticate logs in and stores the resulting session.
//
// On success EventToken and then EventUserID are emitted. On failure
// EventError is emitted, any previous session is dropped and the client is
// left unauthenticated. Nothing is retried.
//
// Returns:
//   - Session: The new session
//   - error: ErrAuthFailed wrapping the cause (ErrCredentialsRejected for 401/403)
func (c *Client) Authenticate(ctx context.Context, email, password string) (Session, error) {
	c.mu.Lock()
	streaming := c.stream != nil
	if !streaming {
		c.state = StateAuthenticating
	}
	c.mu.Unlock()

	var resp sessionResponse
	err := c.doJSON(ctx, http.MethodPost, sessionPath, "", sessionRequest{
		Session: sessionCredentials{Email: email, Password: password},
	}, &resp)
	if err == nil && (resp.Token == "" || resp.UserID == "") {
		err = errors.New("response missing session token or user id")
	}
	if err != nil {
		// A stream opened with the old token cannot outlive the session.
		c.CloseStream()
		c.clearSession()
		err = fmt.Errorf("%w: %w", ErrAuthFailed, err)
		c.getLogger().Error("orbit authentication failed", "error", err)
		c.emit(Event{Kind: EventError, Err: err})
		return Session{}, err
	}

	sess := Session{
		Token:     resp.Token,
		UserID:    resp.UserID,
		BaseURL:   c.baseURL,
		StreamURL: c.streamURL,
	}

	c.mu.Lock()
	c.session = sess
	if c.stream == nil {
		c.state = StateAuthenticated
	}
	c.mu.Unlock()

	c.getLogger().Info("orbit session established",
		"user_id", sess.UserID,
		"token", logging.Redact(sess.Token),
	)
	c.emit(Event{Kind: EventToken, Token: sess.Token})
	c.emit(Event{Kind: EventUserID, UserID: sess.UserID})

	return sess, nil
}

// ListDevices fetches the full device snapshot for the session's user.
//
// On success EventDevices is emitted, followed by EventDeviceID carrying
// the first device's id when the list is not empty. A 401/403 answer drops
// the session so the next bus connect logs in again.
//
// Returns:
//   - []Device: Every device on the account, in cloud order
//   - error: ErrNotAuthenticated, or ErrDeviceFetch wrapping the cause
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	sess := c.Session()
	if !sess.Valid() {
		return nil, ErrNotAuthenticated
	}

	path := devicesPath + "?" + url.Values{"user_id": {sess.UserID}}.Encode()

	var devices []Device
	if err := c.doJSON(ctx, http.MethodGet, path, sess.Token, nil, &devices); err != nil {
		if isCredentialRejection(err) {
			c.clearSession()
		}
		err = fmt.Errorf("%w: %w", ErrDeviceFetch, err)
		c.getLogger().Error("orbit device fetch failed", "error", err)
		c.emit(Event{Kind: EventError, Err: err})
		return nil, err
	}

	c.getLogger().Debug("orbit devices fetched", "count", len(devices))
	c.emit(Event{Kind: EventDevices, Devices: devices})
	if len(devices) > 0 {
		c.emit(Event{Kind: EventDeviceID, DeviceID: devices[0].ID})
	}

	return devices, nil
}

// doJSON performs one REST call through the circuit breaker.
func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, token, body, out)
	})
	return err
}

// roundTrip sends body as JSON and decodes a 2xx response into out.
func (c *Client) roundTrip(ctx context.Context, method, path, token string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(tokenHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", ErrCredentialsRejected, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func isCredentialRejection(err error) bool {
	return errors.Is(err, ErrCredentialsRejected)
}
