// Package client is a typed client for the booking REST API. Every response
// is decoded into typed values and checked before it is returned.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultTimeout = 10 * time.Second

type Client struct {
	base   *url.URL
	http   *http.Client
	token  string
	logger zerolog.Logger
}

type Option func(*Client)

// WithTimeout bounds every call, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", baseURL)
	}
	c := &Client{
		base:   u,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithBearer returns a copy of c that authenticates as token.
func (c *Client) WithBearer(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("request failed")
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %v", ErrInvalidResponse, method, path, err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidResponse, fmt.Sprintf(format, args...))
}

func validateDoctor(d *Doctor) error {
	if d.ID == "" || d.Name == "" {
		return invalid("doctor without id or name")
	}
	return nil
}

func validateAppointment(a *Appointment) error {
	switch {
	case a.ID == "":
		return invalid("appointment without id")
	case a.DoctorID == "":
		return invalid("appointment %s without doctorId", a.ID)
	case a.DateTime.IsZero():
		return invalid("appointment %s without dateTime", a.ID)
	}
	switch a.Status {
	case StatusPending, StatusConfirmed, StatusCancelled:
	default:
		return invalid("appointment %s has unknown status %q", a.ID, a.Status)
	}
	a.DateTime = a.DateTime.UTC()
	return nil
}

// -- Doctors --

func (c *Client) ListDoctors(ctx context.Context, includeAvailability bool) ([]Doctor, error) {
	var q url.Values
	if includeAvailability {
		q = url.Values{"include_availability": {"true"}}
	}
	var out []Doctor
	if err := c.do(ctx, http.MethodGet, "/doctors", q, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := validateDoctor(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) GetDoctor(ctx context.Context, id string) (*Doctor, error) {
	var out Doctor
	if err := c.do(ctx, http.MethodGet, "/doctors/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	if err := validateDoctor(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DoctorAvailability returns the doctor's day-level availability entries.
func (c *Client) DoctorAvailability(ctx context.Context, id string) ([]time.Time, error) {
	var out struct {
		Availability *[]time.Time `json:"availability"`
	}
	if err := c.do(ctx, http.MethodGet, "/doctors/"+url.PathEscape(id)+"/availability", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Availability == nil {
		return nil, invalid("availability missing")
	}
	return *out.Availability, nil
}

// -- Appointments --

// CheckSlot asks whether the doctor is free at the instant. The response must
// carry a boolean isAvailable.
func (c *Client) CheckSlot(ctx context.Context, doctorID string, at time.Time) (bool, error) {
	path := "/appointments/available/" + url.PathEscape(doctorID) + "/" + url.PathEscape(at.UTC().Format(time.RFC3339))
	var out struct {
		IsAvailable *bool `json:"isAvailable"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return false, err
	}
	if out.IsAvailable == nil {
		return false, invalid("isAvailable missing")
	}
	return *out.IsAvailable, nil
}

func (c *Client) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", nil, in, &out); err != nil {
		return nil, err
	}
	if err := validateAppointment(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	if err := validateAppointment(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserAppointments(ctx context.Context, userID string) ([]Appointment, error) {
	var out []Appointment
	if err := c.do(ctx, http.MethodGet, "/appointments/user/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := validateAppointment(&out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Client) UpdateStatus(ctx context.Context, id, status string) (*Appointment, error) {
	body := map[string]string{"status": status}
	var out Appointment
	if err := c.do(ctx, http.MethodPut, "/appointments/"+url.PathEscape(id)+"/status", nil, body, &out); err != nil {
		return nil, err
	}
	if err := validateAppointment(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAppointment replaces the editable fields. Admin only.
func (c *Client) UpdateAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	var out Appointment
	if err := c.do(ctx, http.MethodPut, "/appointments/"+url.PathEscape(a.ID), nil, a, &out); err != nil {
		return nil, err
	}
	if err := validateAppointment(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/appointments/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) AdminAppointments(ctx context.Context, q AdminQuery) (*AdminPage, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.LastDoc != "" {
		query.Set("lastDoc", q.LastDoc)
	}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	var out AdminPage
	if err := c.do(ctx, http.MethodGet, "/appointments/admin", query, nil, &out); err != nil {
		return nil, err
	}
	if out.Appointments == nil {
		return nil, invalid("appointments missing")
	}
	for i := range out.Appointments {
		if err := validateAppointment(&out.Appointments[i]); err != nil {
			return nil, err
		}
	}
	if out.HasMore && out.LastDoc == "" {
		return nil, invalid("hasMore without lastDoc")
	}
	return &out, nil
}

// IsTimeout reports whether err came from a call that ran out of time.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
