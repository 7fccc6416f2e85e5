package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 15 * time.Second

	appointmentsPath = "/api/agendamentos/"
	patientsPath     = "/api/pacientes/"
)

var clientTracer = otel.Tracer("dental.internal.appointments.client")

// TokenSource supplies the bearer token for each call and is told when the
// API rejects it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Expire(ctx context.Context) error
}

// Client wraps the clinic REST API used by the agenda.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	logger     *logging.Logger
	metrics    *metrics.AgendaMetrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.AgendaMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient constructs a clinic API client.
func NewClient(baseURL string, tokens TokenSource, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTokens returns a copy of c that authenticates with tokens. The HTTP
// client is shared.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	clone := *c
	clone.tokens = tokens
	return &clone
}

// ListAppointments fetches the appointment collection. The API may answer with
// a bare array or a paginated envelope.
func (c *Client) ListAppointments(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	path := appointmentsPath
	if filter.Date != nil {
		q := url.Values{}
		q.Set("data_consulta", filter.Date.String())
		path += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	items, err := decodeList[Appointment](body)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return items, nil
}

// CreateAppointment books a new appointment.
func (c *Client) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	body, err := c.do(ctx, http.MethodPost, appointmentsPath, req)
	if err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	var appt Appointment
	if err := json.Unmarshal(body, &appt); err != nil {
		return nil, fmt.Errorf("create appointment: decode response: %w", err)
	}
	return &appt, nil
}

// UpdateStatus changes the status of an appointment and returns the server's
// representation of it.
func (c *Client) UpdateStatus(ctx context.Context, id int64, status Status) (*Appointment, error) {
	body, err := c.do(ctx, http.MethodPatch, appointmentPath(id), StatusUpdate{Status: status})
	if err != nil {
		return nil, fmt.Errorf("update appointment %d status: %w", id, err)
	}
	var appt Appointment
	if err := json.Unmarshal(body, &appt); err != nil {
		return nil, fmt.Errorf("update appointment %d status: decode response: %w", id, err)
	}
	return &appt, nil
}

// DeleteAppointment removes an appointment.
func (c *Client) DeleteAppointment(ctx context.Context, id int64) error {
	if _, err := c.do(ctx, http.MethodDelete, appointmentPath(id), nil); err != nil {
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}
	return nil
}

// ListPatients fetches the patient lookup list.
func (c *Client) ListPatients(ctx context.Context) ([]Patient, error) {
	body, err := c.do(ctx, http.MethodGet, patientsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	items, err := decodeList[Patient](body)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return items, nil
}

func appointmentPath(id int64) string {
	return appointmentsPath + strconv.FormatInt(id, 10) + "/"
}

// endpointLabel keeps metric cardinality bounded by dropping ids and queries.
func endpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch {
	case path == appointmentsPath:
		return "appointments"
	case strings.HasPrefix(path, appointmentsPath):
		return "appointment"
	case path == patientsPath:
		return "patients"
	default:
		return "other"
	}
}

// requestID forwards the id of the inbound request when there is one.
func requestID(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	endpoint := endpointLabel(path)
	ctx, span := clientTracer.Start(ctx, "appointments.client."+strings.ToLower(method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("clinic.endpoint", endpoint),
	)

	start := time.Now()
	status := "error"
	defer func() {
		c.metrics.ObserveAPIRequest(method, endpoint, status, time.Since(start).Seconds())
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read response: %w", err)
	}
	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path, Body: respBody}
		span.RecordError(apiErr)
		if errors.Is(apiErr, ErrUnauthorized) && c.tokens != nil {
			if expErr := c.tokens.Expire(ctx); expErr != nil {
				c.logger.Warn("failed to expire session", "error", expErr)
			}
		}
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("clinic API non-2xx response", "status", resp.StatusCode, "method", method, "path", path, "body", msg)
		return nil, apiErr
	}
	return respBody, nil
}
