// Package scenario implements the e-commerce user session: seven weighted
// operations against the gateway, the per-user state that chains them, and
// the status code policy that classifies every response.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/example/ecommerce/tools/loadgen/internal/client"
	"go.uber.org/zap"
)

// Errors returned by the scenario package.
var (
	// ErrUnknownTask is returned when a task name is not part of the scenario.
	ErrUnknownTask = errors.New("scenario: unknown task")
	// ErrInvalidScenario is returned when scenario options are invalid.
	ErrInvalidScenario = errors.New("scenario: invalid configuration")
)

// Doer executes HTTP requests. *client.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// Result describes one issued request.
type Result struct {
	SessionID string
	Task      string
	Method    string
	Path      string
	Outcome   Outcome
	Duration  time.Duration
	Timestamp time.Time
}

// Recorder receives every issued request.
type Recorder interface {
	Record(Result)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(Result)

// Record calls f(r).
func (f RecorderFunc) Record(r Result) { f(r) }

// Options configures a User.
type Options struct {
	// Policy classifies responses. Default: PolicyGateway.
	Policy Policy
	// Payloads are the request bodies. Default: DefaultPayloads().
	Payloads *Payloads
	// Recorder receives results. May be nil.
	Recorder Recorder
	// Logger for request failures. Default: no-op.
	Logger *zap.Logger
}

// User is one simulated session. Operations run one at a time.
// Thread Safety: Not safe for concurrent use.
type User struct {
	id       string
	state    State
	doer     Doer
	policy   Policy
	payloads Payloads
	recorder Recorder
	logger   *zap.Logger
	parser   *client.ResponseParser
}

// NewUser creates a session with empty state.
func NewUser(id string, doer Doer, opts Options) *User {
	u := &User{
		id:       id,
		doer:     doer,
		policy:   opts.Policy,
		payloads: DefaultPayloads(),
		recorder: opts.Recorder,
		logger:   opts.Logger,
		parser:   client.NewResponseParser(),
	}
	if u.policy == "" {
		u.policy = PolicyGateway
	}
	if opts.Payloads != nil {
		u.payloads = *opts.Payloads
	}
	if u.logger == nil {
		u.logger = zap.NewNop()
	}
	u.logger = u.logger.With(zap.String("session", id))
	return u
}

// ID returns the session id.
func (u *User) ID() string { return u.id }

// State returns the session state.
func (u *User) State() *State { return &u.state }

// Run executes the named task.
func (u *User) Run(ctx context.Context, name string) error {
	task, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	task.Run(u, ctx)
	return nil
}

// ViewProducts lists the catalog and remembers the first product ids.
func (u *User) ViewProducts(ctx context.Context) {
	resp, ok := u.call(ctx, TaskViewProducts, http.MethodGet, PathProducts, nil)
	if !ok || !is2xx(resp) {
		return
	}
	if ids := u.productIDs(resp.Body); len(ids) > 0 {
		u.state.SetProductIDs(ids)
	}
}

// CreateUser registers the session's user.
func (u *User) CreateUser(ctx context.Context) {
	resp, ok := u.call(ctx, TaskCreateUser, http.MethodPost, PathUsers, u.payloads.User)
	if !ok || !is2xx(resp) {
		return
	}
	if id, err := u.parser.ExtractInt(resp.Body, "$.userId"); err == nil && validID(id) {
		u.state.SetUserID(id)
	}
}

// GetUser fetches the session's user. No request without a user id.
func (u *User) GetUser(ctx context.Context) {
	id, ok := u.state.UserID()
	if !ok {
		return
	}
	u.call(ctx, TaskGetUser, http.MethodGet, fmt.Sprintf("%s/%d", PathUsers, id), nil)
}

// CreateOrder places the fixed order. No request without a user id.
func (u *User) CreateOrder(ctx context.Context) {
	if _, ok := u.state.UserID(); !ok {
		return
	}
	resp, ok := u.call(ctx, TaskCreateOrder, http.MethodPost, PathOrders, u.payloads.Order)
	if !ok || !is2xx(resp) {
		return
	}
	if id, err := u.parser.ExtractInt(resp.Body, "$.orderId"); err == nil && validID(id) {
		u.state.SetOrderID(id)
	}
}

// AddOrderItem ships an item. Requires both an order and known products.
func (u *User) AddOrderItem(ctx context.Context) {
	if _, ok := u.state.OrderID(); !ok {
		return
	}
	if len(u.state.productIDs) == 0 {
		return
	}
	u.call(ctx, TaskAddOrderItem, http.MethodPost, PathShippings, u.payloads.OrderItem)
}

// ViewOrders lists all orders.
func (u *User) ViewOrders(ctx context.Context) {
	u.call(ctx, TaskViewOrders, http.MethodGet, PathOrders, nil)
}

// ViewOrderItems lists all shipping items.
func (u *User) ViewOrderItems(ctx context.Context) {
	u.call(ctx, TaskViewOrderItems, http.MethodGet, PathShippings, nil)
}

// call issues one request, classifies and records it. It reports whether a
// response was received and classified as success. Failures never escape.
func (u *User) call(ctx context.Context, task, method, path string, body any) (*client.Response, bool) {
	start := time.Now()
	resp, err := u.doer.Do(ctx, client.Request{Method: method, Path: path, Body: body})

	result := Result{
		SessionID: u.id,
		Task:      task,
		Method:    method,
		Path:      path,
		Timestamp: start,
	}

	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by shutdown, not a failure of the target.
			return nil, false
		}
		result.Outcome = transportOutcome(err)
		result.Duration = time.Since(start)
		if resp != nil {
			result.Duration = resp.Duration
		}
		u.record(result)
		return nil, false
	}

	result.Outcome = u.policy.Classify(resp.StatusCode)
	result.Duration = resp.Duration
	u.record(result)
	return resp, result.Outcome.OK()
}

func (u *User) record(r Result) {
	if !r.Outcome.OK() {
		u.logger.Debug("request failed",
			zap.String("task", r.Task),
			zap.String("method", r.Method),
			zap.String("path", r.Path),
			zap.Int("status", r.Outcome.StatusCode),
			zap.String("error", r.Outcome.Message),
		)
	}
	if u.recorder != nil {
		u.recorder.Record(r)
	}
}

// productIDs extracts up to MaxProductIDs ids from a listing body. Records
// without a valid productId are skipped.
func (u *User) productIDs(body []byte) []int {
	records, err := u.parser.ExtractArray(body, "$.collection")
	if err != nil {
		return nil
	}
	if len(records) > MaxProductIDs {
		records = records[:MaxProductIDs]
	}

	ids := make([]int, 0, len(records))
	for _, rec := range records {
		v, err := u.parser.Lookup(rec, "productId")
		if err != nil {
			continue
		}
		if id, err := client.AsInt(v); err == nil && validID(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// validID accepts the positive 32-bit range used for entity ids.
func validID(id int) bool {
	return id > 0 && id <= math.MaxInt32
}

func is2xx(resp *client.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
