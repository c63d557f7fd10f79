// Package client talks to the report API: paginated listing over HTTP and
// the change stream over a websocket.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"signalhub/internal/domain"

	"github.com/gorilla/websocket"
)

// APIError is a non-2xx answer decoded from the error body.
type APIError struct {
	Status  int      `json:"-"`
	Code    string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
	backoff time.Duration
	logger  *slog.Logger

	onReconnect func()
}

func New(baseURL, token string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: unsupported scheme %q", u.Scheme)
	}
	return &Client{
		base:    u,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: 2 * time.Second,
		logger:  logger,
	}, nil
}

func (c *Client) List(ctx context.Context, f domain.Filter) (*domain.ReportPage, error) {
	u := *c.base
	u.Path += "/api/v1/reports"
	u.RawQuery = FilterQuery(f).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: list reports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var page domain.ReportPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("client: decode page: %w", err)
	}
	if page.Reports == nil {
		page.Reports = []*domain.Report{}
	}
	return &page, nil
}

// OnReconnect registers fn to run after every redial that follows a lost
// stream. Events missed while disconnected are not replayed, so fn is where
// the caller resynchronizes. Must be set before Subscribe.
func (c *Client) OnReconnect(fn func()) {
	c.onReconnect = fn
}

// Subscribe streams change events to h until the returned func is called,
// redialing after connection loss.
func (c *Client) Subscribe(h func(domain.ChangeEvent)) func() {
	ctx, cancel := context.WithCancel(context.Background())

	var (
		mu   sync.Mutex
		conn *websocket.Conn
		done = make(chan struct{})
	)

	go func() {
		defer close(done)
		connected := false
		for ctx.Err() == nil {
			ws, _, err := c.dialer.DialContext(ctx, c.streamURL(), c.header())
			if err != nil {
				c.logger.Warn("stream dial failed", slog.Any("error", err), slog.Duration("backoff", c.backoff))
				c.sleep(ctx)
				continue
			}
			mu.Lock()
			conn = ws
			mu.Unlock()
			c.logger.Info("stream connected", slog.Bool("reconnect", connected))
			if connected && c.onReconnect != nil {
				go c.onReconnect()
			}
			connected = true

			c.read(ws, h)

			mu.Lock()
			conn = nil
			mu.Unlock()
			_ = ws.Close()
			c.sleep(ctx)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			if conn != nil {
				_ = conn.Close()
			}
			mu.Unlock()
			<-done
		})
	}
}

func (c *Client) read(ws *websocket.Conn, h func(domain.ChangeEvent)) {
	for {
		var ev domain.ChangeEvent
		if err := ws.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("stream read failed", slog.Any("error", err))
			}
			return
		}
		if ev.Report == nil {
			continue
		}
		h(ev)
	}
}

func (c *Client) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(c.backoff):
	}
}

func (c *Client) streamURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/api/v1/reports/stream"
	return u.String()
}

func (c *Client) header() http.Header {
	h := http.Header{}
	c.authorize(h)
	return h
}

func (c *Client) authorize(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
}

// FilterQuery encodes f the way the list endpoint parses it.
func FilterQuery(f domain.Filter) url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(f.Page))
	q.Set("limit", strconv.Itoa(f.Limit))
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Geo != nil {
		q.Set("lat", strconv.FormatFloat(f.Geo.Latitude, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(f.Geo.Longitude, 'f', -1, 64))
		q.Set("radius_km", strconv.FormatFloat(f.Geo.RadiusKM, 'f', -1, 64))
	}
	return q
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_"))
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
