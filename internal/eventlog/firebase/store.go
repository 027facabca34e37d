// Package firebase stores lifecycle events in a Firebase Realtime Database
// through its REST API.
//
// Events live under /events keyed by Firebase push ids. Reads use the
// database's ordered queries:
//
//	GET  {uri}/events.json?auth=S&orderBy="created_at"&startAt=A&endAt=B
//	GET  {uri}/events.json?auth=S&orderBy="tracker_id"&equalTo="1234567"
//	GET  {uri}/events.json?auth=S&orderBy="created_at"&limitToLast=20
//	POST {uri}/events.json?auth=S          -> {"name": "-Nx..."}
//	GET  {uri}/events/-Nx....json?auth=S
//
// Firebase orders by a single child per request, so the parts of a query it
// cannot express are applied client-side with [eventlog.Query.Apply].
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dghubble/sling"
	"github.com/sirupsen/logrus"

	"cycletrack/internal/event"
	"cycletrack/internal/eventlog"
)

// Config holds connection settings.
type Config struct {
	// URI is the database root, e.g. https://project.firebaseio.com.
	URI string
	// Secret is sent as the auth query parameter. Optional.
	Secret string
	// Timeout bounds each HTTP request. Default: 15s.
	Timeout time.Duration
	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int
}

// StatusError is a non-2xx response from Firebase.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("firebase: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("firebase: HTTP %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// params is the query string sent with every request. Firebase expects
// orderBy and equalTo as JSON string literals, hence the embedded quotes.
type params struct {
	Auth        string `url:"auth,omitempty"`
	OrderBy     string `url:"orderBy,omitempty"`
	EqualTo     string `url:"equalTo,omitempty"`
	StartAt     *int64 `url:"startAt,omitempty"`
	EndAt       *int64 `url:"endAt,omitempty"`
	LimitToLast int    `url:"limitToLast,omitempty"`
}

type pushResponse struct {
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Store is an [eventlog.Store] backed by Firebase.
type Store struct {
	client     *sling.Sling
	httpClient *http.Client
	secret     string
	maxRetries int
	log        *logrus.Entry

	newBackOff func() backoff.BackOff
}

// New creates a Firebase store.
func New(cfg Config, log *logrus.Entry) (*Store, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("firebase: uri is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	base := strings.TrimRight(cfg.URI, "/") + "/"

	return &Store{
		client:     sling.New().Base(base),
		httpClient: httpClient,
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		log:        log.WithField("cmp", "firebase"),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}, nil
}

func (s *Store) req() *sling.Sling {
	return s.client.New()
}

// Query implements [eventlog.Store].
func (s *Store) Query(ctx context.Context, q eventlog.Query) ([]event.Event, error) {
	if q.IsEmpty() {
		return nil, eventlog.ErrEmptyQuery
	}

	raw := make(map[string]json.RawMessage)
	for _, p := range s.serverParams(q) {
		s.log.WithFields(logrus.Fields{
			"orderBy": p.OrderBy, "equalTo": p.EqualTo, "limitToLast": p.LimitToLast,
		}).Debug("querying events")

		var part map[string]json.RawMessage
		err := s.call(ctx, func() *sling.Sling {
			return s.req().Get("events.json").QueryStruct(p)
		}, &part)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		for k, v := range part {
			raw[k] = v
		}
	}

	events, err := decodeEvents(raw)
	if err != nil {
		return nil, err
	}
	return q.Apply(events), nil
}

// serverParams picks the ordered queries Firebase will run. A tracker id is
// the most selective filter and wins over the time range. Older clients
// stored numeric ids as JSON numbers, which a string equalTo never matches,
// so a numeric id is queried both ways.
func (s *Store) serverParams(q eventlog.Query) []params {
	p := params{Auth: s.secret}
	if q.TrackerID != "" {
		p.OrderBy = `"tracker_id"`
		p.EqualTo = strconv.Quote(q.TrackerID)
		out := []params{p}
		if n, err := strconv.ParseUint(q.TrackerID, 10, 64); err == nil && strconv.FormatUint(n, 10) == q.TrackerID {
			p.EqualTo = q.TrackerID
			out = append(out, p)
		}
		return out
	}

	p.OrderBy = `"created_at"`
	if !q.StartAt.IsZero() {
		v := q.StartAt.Unix()
		p.StartAt = &v
	}
	if !q.EndAt.IsZero() {
		v := q.EndAt.Unix()
		p.EndAt = &v
	}
	if q.Last > 0 {
		p.LimitToLast = q.Last
	}
	return []params{p}
}

// decodeEvents converts the keyed object Firebase returns into events. Push
// ids sort in creation order, so sorting by key first preserves arrival order
// for events sharing a timestamp.
func decodeEvents(raw map[string]json.RawMessage) ([]event.Event, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	events := make([]event.Event, 0, len(keys))
	for _, k := range keys {
		var e event.Event
		if err := json.Unmarshal(raw[k], &e); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", k, err)
		}
		e.Key = k
		events = append(events, e)
	}
	event.SortByTime(events)
	return events, nil
}

// Append implements [eventlog.Store]. The stored record is read back so the
// returned event reflects what the database holds.
func (s *Store) Append(ctx context.Context, e event.Event) (event.Event, error) {
	e.CreatedAt = event.Truncate(e.CreatedAt)
	p := params{Auth: s.secret}

	var pushed pushResponse
	err := s.call(ctx, func() *sling.Sling {
		return s.req().Post("events.json").QueryStruct(p).BodyJSON(e)
	}, &pushed)
	if err != nil {
		return event.Event{}, &eventlog.AppendError{Event: e, Err: err}
	}
	if pushed.Name == "" {
		return event.Event{}, &eventlog.AppendError{Event: e, Err: errors.New("firebase: push returned no key")}
	}

	stored, err := s.fetch(ctx, pushed.Name)
	if err != nil {
		return event.Event{}, &eventlog.AppendError{Event: e, Err: err}
	}
	s.log.WithFields(logrus.Fields{"key": stored.Key, "id": stored.TrackerID, "event": stored.Kind}).Debug("event appended")
	return stored, nil
}

func (s *Store) fetch(ctx context.Context, key string) (event.Event, error) {
	p := params{Auth: s.secret}

	var raw json.RawMessage
	err := s.call(ctx, func() *sling.Sling {
		return s.req().Get("events/" + key + ".json").QueryStruct(p)
	}, &raw)
	if err != nil {
		return event.Event{}, fmt.Errorf("fetch event %s: %w", key, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return event.Event{}, fmt.Errorf("fetch event %s: not found", key)
	}

	var e event.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return event.Event{}, fmt.Errorf("decode event %s: %w", key, err)
	}
	e.Key = key
	return e, nil
}

// call sends the request built by build, retrying transient failures, and
// decodes a successful JSON body into out. A null body leaves out untouched.
func (s *Store) call(ctx context.Context, build func() *sling.Sling, out interface{}) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)

	return backoff.Retry(func() error {
		req, err := build().Request()
		if err != nil {
			return backoff.Permanent(err)
		}
		req = req.WithContext(ctx)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			s.log.WithError(err).Debug("request failed, retrying")
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
			if statusErr.Temporary() {
				s.log.WithField("status", resp.StatusCode).Debug("transient response, retrying")
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		body = bytes.TrimSpace(body)
		if len(body) == 0 || string(body) == "null" {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}, bo)
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
