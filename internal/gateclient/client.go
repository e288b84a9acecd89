package gateclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tempora/schedgate/internal/model"
)

// Logical cache keys invalidated when a gate resolves.  Confirming a
// gate applies schedule changes with externally visible side effects,
// so every view that may display them is marked stale and refetched
// rather than patched locally.
const (
	CacheCalendar   = "calendar"
	CacheTasks      = "tasks"
	CacheTimeblocks = "timeblocks"
	CacheSchedule   = "schedule"
)

// GateCacheKey returns the per-gate cache key for a token.
func GateCacheKey(token string) string { return "gate:" + token }

// Invalidator marks a logical cached resource stale.  The client calls
// it on the success path of confirm and cancel; it never writes
// server-shaped data into a cache directly.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// Notifier receives the user-visible outcome of every terminal gate
// operation.  Rendering is owned by the caller.
type Notifier interface {
	NotifySuccess(title, body string)
	NotifyError(title, body string)
}

// TokenProvider supplies the current bearer credential.  Acquisition
// and refresh are the provider's problem, not the client's.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// statusTTL is how long a fetched gate is considered fresh.  Gates are
// short-lived and re-read a handful of times during one confirmation
// flow; 30 seconds avoids hammering the status endpoint without going
// noticeably stale.
const statusTTL = 30 * time.Second

// defaultTimeout bounds every request.  A timeout surfaces as an
// Unknown error with the retryable hint set.
const defaultTimeout = 12 * time.Second

type cachedGate struct {
	gate      model.Gate
	fetchedAt time.Time
}

// Client talks to the gate service.  One Client instance serializes
// terminal operations per gate token: a second confirm or cancel for a
// token whose first call is still in flight fails immediately instead
// of racing it.
type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenProvider
	caches  Invalidator
	notify  Notifier

	now func() time.Time

	mu       sync.Mutex
	statuses map[string]cachedGate
	inflight map[string]struct{}
}

// Options configures a Client.  BaseURL, Tokens, Caches and Notify are
// required; HTTPClient defaults to one with a 12s timeout.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenProvider
	Caches     Invalidator
	Notify     Notifier
}

// New constructs a Client.  It panics on missing collaborators, same as
// the handler constructors: wiring bugs should fail at startup, not at
// the first user action.
func New(opts Options) *Client {
	if opts.BaseURL == "" || opts.Tokens == nil || opts.Caches == nil || opts.Notify == nil {
		panic("gateclient: missing required option")
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:  opts.BaseURL,
		httpc:    httpc,
		tokens:   opts.Tokens,
		caches:   opts.Caches,
		notify:   opts.Notify,
		now:      func() time.Time { return time.Now().UTC() },
		statuses: make(map[string]cachedGate),
		inflight: make(map[string]struct{}),
	}
}

// Status returns the gate for the given token.  A result fetched less
// than 30 seconds ago is served from the local cache without a network
// call.  On a transport-level failure the request is retried exactly
// once; 4xx responses are never retried.  Failed fetches do not create
// cache entries.
func (c *Client) Status(ctx context.Context, gateToken string) (model.Gate, error) {
	if gateToken == "" {
		return model.Gate{}, &Error{Kind: KindValidation, Detail: "gate token is required"}
	}
	c.mu.Lock()
	if entry, ok := c.statuses[gateToken]; ok && c.now().Sub(entry.fetchedAt) < statusTTL {
		c.mu.Unlock()
		return entry.gate, nil
	}
	c.mu.Unlock()

	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/gates/%s/status", gateToken), nil, true)
	if err != nil {
		return model.Gate{}, err
	}
	var gate model.Gate
	if err := json.Unmarshal(body, &gate); err != nil {
		return model.Gate{}, &Error{Kind: KindUnknown, Detail: fmt.Sprintf("malformed gate response: %v", err)}
	}

	c.mu.Lock()
	c.statuses[gateToken] = cachedGate{gate: gate, fetchedAt: c.now()}
	c.mu.Unlock()
	return gate, nil
}

// Confirm finalizes a gate, optionally overriding specific proposed
// time blocks.  A nil or empty modification list means "accept the
// proposal verbatim" and is sent as an empty array, never null.
//
// On success the four dependent view caches (calendar, tasks,
// timeblocks, schedule) are invalidated, the gate's own status cache
// entry is dropped, and a "Schedule Confirmed" notification is emitted.
// On failure nothing is invalidated and an error notification carries
// the server's detail text.  Confirm never retries: the server's write
// may have partially succeeded before the error response, and a blind
// retry risks double-booking.
func (c *Client) Confirm(ctx context.Context, gateToken string, mods []model.Modification) (json.RawMessage, error) {
	if gateToken == "" {
		return nil, &Error{Kind: KindValidation, Detail: "gate token is required"}
	}
	if err := ValidateModifications(mods); err != nil {
		return nil, err
	}
	if err := c.acquire(gateToken); err != nil {
		return nil, err
	}
	defer c.release(gateToken)

	if mods == nil {
		mods = []model.Modification{}
	}
	payload, err := json.Marshal(map[string]any{"modifications": mods})
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Detail: err.Error()}
	}

	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/gates/%s/confirm", gateToken), payload, false)
	if err != nil {
		c.notifyFailure("Schedule Confirmation Failed", err)
		return nil, err
	}

	// The gate's own 30s status memo is local state, dropped directly;
	// the shared invalidator receives exactly the four dependent views.
	c.dropStatus(gateToken)
	for _, key := range []string{CacheCalendar, CacheTasks, CacheTimeblocks, CacheSchedule} {
		if err := c.caches.Invalidate(ctx, key); err != nil {
			log.Printf("gateclient: invalidate %s failed: %v", key, err)
		}
	}
	c.notify.NotifySuccess("Schedule Confirmed", "Your schedule has been updated.")
	return body, nil
}

// Cancel abandons a gate without applying its proposal.  Only the
// gate's own cache entry is invalidated: nothing was applied, so the
// calendar and task views are still accurate.  Cancelling an
// already-confirmed gate surfaces AlreadyResolved.
func (c *Client) Cancel(ctx context.Context, gateToken, reason string) (json.RawMessage, error) {
	if gateToken == "" {
		return nil, &Error{Kind: KindValidation, Detail: "gate token is required"}
	}
	if err := c.acquire(gateToken); err != nil {
		return nil, err
	}
	defer c.release(gateToken)

	payload, err := json.Marshal(map[string]any{"reason": reason})
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Detail: err.Error()}
	}

	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/gates/%s/cancel", gateToken), payload, false)
	if err != nil {
		c.notifyFailure("Schedule Cancellation Failed", err)
		return nil, err
	}

	c.dropStatus(gateToken)
	if err := c.caches.Invalidate(ctx, GateCacheKey(gateToken)); err != nil {
		log.Printf("gateclient: invalidate %s failed: %v", GateCacheKey(gateToken), err)
	}
	c.notify.NotifySuccess("Schedule Cancelled", "The proposed schedule was discarded.")
	return body, nil
}

// ValidateModifications checks the shape of a modification list before
// it goes on the wire.  Whether a timeblock id actually belongs to the
// gate's preview is the server's check, not ours.
func ValidateModifications(mods []model.Modification) error {
	for i, m := range mods {
		if m.TimeblockID == "" {
			return &Error{Kind: KindValidation, Detail: fmt.Sprintf("modification %d: timeblock_id is required", i)}
		}
		if m.NewStartTime == "" && m.NewDurationMinutes == 0 {
			return &Error{Kind: KindValidation, Detail: fmt.Sprintf("modification %d: must set new_start_time or new_duration_minutes", i)}
		}
		if m.NewStartTime != "" {
			if _, err := time.Parse(time.RFC3339, m.NewStartTime); err != nil {
				return &Error{Kind: KindValidation, Detail: fmt.Sprintf("modification %d: new_start_time is not a valid RFC 3339 timestamp", i)}
			}
		}
		if m.NewDurationMinutes < 0 {
			return &Error{Kind: KindValidation, Detail: fmt.Sprintf("modification %d: new_duration_minutes must be positive", i)}
		}
	}
	return nil
}

// acquire registers an in-flight terminal operation for a token.  The
// UI is expected to disable its buttons while a call is pending; this
// is the backstop for when it doesn't.
func (c *Client) acquire(gateToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[gateToken]; busy {
		return &Error{Kind: KindUnknown, Detail: "another confirm or cancel for this gate is still in flight"}
	}
	c.inflight[gateToken] = struct{}{}
	return nil
}

func (c *Client) release(gateToken string) {
	c.mu.Lock()
	delete(c.inflight, gateToken)
	c.mu.Unlock()
}

func (c *Client) dropStatus(gateToken string) {
	c.mu.Lock()
	delete(c.statuses, gateToken)
	c.mu.Unlock()
}

func (c *Client) notifyFailure(title string, err error) {
	detail := "please try again"
	var ge *Error
	if errors.As(err, &ge) && ge.Detail != "" {
		detail = ge.Detail
	}
	c.notify.NotifyError(title, detail)
}

// do issues one request against the gate service.  retryOnce enables a
// single automatic retry on transport failure; it is set only for the
// status fetch, which is a read.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, retryOnce bool) (json.RawMessage, error) {
	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &Error{Kind: KindUnauthorized, Detail: fmt.Sprintf("no credential available: %v", err)}
	}

	attempt := func() (json.RawMessage, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Detail: err.Error()}
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpc.Do(req)
		if err != nil {
			return nil, transportError(err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, transportError(err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return raw, nil
		}
		return nil, mapStatus(resp.StatusCode, detailFrom(raw))
	}

	out, err := attempt()
	if err != nil && retryOnce {
		var ge *Error
		if errors.As(err, &ge) && ge.Retryable() {
			out, err = attempt()
		}
	}
	return out, err
}

// detailFrom pulls the `detail` field out of an error body, tolerating
// non-JSON responses from intermediaries.
func detailFrom(raw []byte) string {
	var eb struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	return eb.Detail
}
