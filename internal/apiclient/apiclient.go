// Package apiclient implements the HTTP session with the control plane
// (§4.F): device auth, config/credentials fetch, clock-sync ping, and
// at-least-once reading upload. The shared-transport construction follows
// _examples/nugget-thane-ai-agent/internal/httpkit/httpkit.go (explicit
// dial/TLS/idle timeouts, one *http.Client per process); the endpoint set,
// retry-once-on-401, and clock-offset semantics are ported 1:1 from
// original_source/src/core/api_client.py.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/store"
)

var log = logging.WithComponent("apiclient")

// DefaultTimeout is the fixed per-request timeout named in §4.F.
const DefaultTimeout = 10 * time.Second

// newTransport builds the shared *http.Transport, following httpkit.go's
// explicit-timeouts-over-defaults discipline.
func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   DefaultTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultTimeout,
		ResponseHeaderTimeout: DefaultTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   4,
	}
}

// MQTTCredentials is the §6 /mqtt-credentials response shape.
type MQTTCredentials struct {
	User  string `json:"MQTT_USER"`
	Pass  string `json:"MQTT_PASSWORD"`
	Topic string `json:"MQTT_TOPIC"`
}

// Client is the device's single authenticated HTTP session.
type Client struct {
	baseURL  string
	deviceID string
	http     *http.Client

	mu     sync.Mutex
	token  string
	offset int64 // local_ms - server_ms, updated on every successful ping
}

// New constructs a Client; callers must call Authenticate before any other
// method.
func New(baseURL, deviceUID string) *Client {
	return &Client{
		baseURL:  baseURL,
		deviceID: deviceUID,
		http:     &http.Client{Timeout: DefaultTimeout, Transport: newTransport()},
	}
}

// OffsetMs returns the most recently observed clock offset (local - server).
func (c *Client) OffsetMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

func (c *Client) setToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Authenticate exchanges DEVICE_UID for a bearer token via POST
// /device-auth. Must succeed before any other endpoint is called.
func (c *Client) Authenticate(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"uid": c.deviceID})
	resp, err := c.do(ctx, http.MethodPost, "/device-auth", body, false)
	if err != nil {
		return errs.ServerUnreachable("device-auth", err)
	}
	defer drain(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return errs.ServerUnreachable("device-auth", fmt.Errorf("status %d", resp.StatusCode))
	}
	tok, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.ServerUnreachable("device-auth", err)
	}
	c.setToken(string(bytes.TrimSpace(tok)))
	log.Debug("authenticated")
	return nil
}

// DeviceConfig fetches the current DeviceConfig via GET /device-config.
func (c *Client) DeviceConfig(ctx context.Context) (config.DeviceConfig, error) {
	var dc config.DeviceConfig
	data, err := c.getWithReauth(ctx, "/device-config")
	if err != nil {
		return dc, err
	}
	return config.ParseDeviceConfig(data)
}

// MQTTCredentials fetches broker credentials via GET /mqtt-credentials.
func (c *Client) MQTTCredentials(ctx context.Context) (MQTTCredentials, error) {
	var creds MQTTCredentials
	data, err := c.getWithReauth(ctx, "/mqtt-credentials")
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, errs.ConfigInvalid("mqtt-credentials: " + err.Error())
	}
	return creds, nil
}

// Ping hits POST /device-ping and recomputes the clock offset from the
// server's reported time, per §4.F's clock-skew correction.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doWithReauth(ctx, http.MethodPost, "/device-ping", nil)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.ServerUnreachable("device-ping", err)
	}
	var body struct {
		Time uint64 `json:"time"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		log.WithError(err).Error("failed to parse ping response")
		return nil // a malformed ping body is not server-unreachable; offset simply isn't updated
	}
	localMs := time.Now().UnixMilli()
	c.mu.Lock()
	c.offset = localMs - int64(body.Time)
	c.mu.Unlock()
	return nil
}

type readingPayload struct {
	SensorID  uint32  `json:"sensorId"`
	Value     float64 `json:"value"`
	CreatedAt int64   `json:"createdAt"`
}

// UploadReadings implements the §4.F upload protocol: snapshot is read by
// the caller and passed in; on 2xx every uploaded row up to the snapshot's
// last id is purged from store. On any other outcome the store is left
// intact and ServerUnreachable is returned, so the next cycle retries.
func (c *Client) UploadReadings(ctx context.Context, s *store.Store, readings []store.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	offset := c.OffsetMs()
	payload := make([]readingPayload, len(readings))
	for i, r := range readings {
		payload[i] = readingPayload{
			SensorID:  r.SensorID,
			Value:     r.Value,
			CreatedAt: int64(r.CreatedAtMs) + offset,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("apiclient: marshal readings: %w", err)
	}
	resp, err := c.doWithReauth(ctx, http.MethodPost, "/sensor-readings-save", body)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.ServerUnreachable("sensor-readings-save", fmt.Errorf("status %d", resp.StatusCode))
	}
	lastID := readings[len(readings)-1].ID
	if err := s.PurgeUpTo(lastID); err != nil {
		return fmt.Errorf("apiclient: purge after upload: %w", err)
	}
	return nil
}

// getWithReauth performs a GET and returns the raw response body, retrying
// once on 401.
func (c *Client) getWithReauth(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doWithReauth(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp.Body)
	return io.ReadAll(resp.Body)
}

// doWithReauth performs one request; on 401 it re-authenticates once and
// retries exactly once more, propagating a second 401 per §4.F.
func (c *Client) doWithReauth(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	resp, err := c.do(ctx, method, path, body, true)
	if err != nil {
		return nil, errs.ServerUnreachable(path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp.Body)
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
		resp, err = c.do(ctx, method, path, body, true)
		if err != nil {
			return nil, errs.ServerUnreachable(path, err)
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp.Body)
			return nil, errs.ServerUnreachable(path, fmt.Errorf("unauthorized after re-auth"))
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errs.ServerUnreachable(path, fmt.Errorf("status %d: %s", resp.StatusCode, data))
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if authed {
		if tok := c.bearerToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.http.Do(req)
}

func drain(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	_ = rc.Close()
}
