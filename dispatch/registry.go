// Package dispatch routes decoded frames to handlers. Each request category
// is served by one Handler, which lists the actions it implements in an
// explicit table keyed by protocol.ActionCode. The Registry is filled at
// startup and frozen before the server begins accepting connections.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/gameserver/protocol"
	"github.com/cyberinferno/gameserver/respcache"
)

var (
	// ErrUnknownCategory is returned by Dispatch when no handler is
	// registered for the frame's category.
	ErrUnknownCategory = errors.New("no handler for request category")
	// ErrUnknownAction is returned by Dispatch when the category's handler
	// has no operation for the frame's action.
	ErrUnknownAction = errors.New("no operation for action")
	// ErrHandlerFailed matches every *HandlerError.
	ErrHandlerFailed = errors.New("handler failed")
	// ErrDuplicateCategory is returned by Register for a category that
	// already has a handler.
	ErrDuplicateCategory = errors.New("request category already registered")
	// ErrRegistryFrozen is returned by Register after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Operation is one action implementation. The payload is the frame's UTF-8
// payload; a non-empty result is sent back to the caller and an empty one
// means no response.
type Operation func(ctx context.Context, payload string) (string, error)

// Operations maps the actions a handler implements to their operations.
type Operations map[protocol.ActionCode]Operation

// Handler serves one request category. Handlers are shared by every
// connection; a handler with mutable state synchronizes it itself.
type Handler interface {
	// Operations returns the handler's action table. It is called once, at
	// registration.
	Operations() Operations
}

// HandlerError reports an operation that returned an error or panicked.
type HandlerError struct {
	Route Route
	Err   error
	// Stack is set when the operation panicked.
	Stack []byte
}

// Error implements error.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Route, e.Err)
}

// Unwrap returns the operation's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrHandlerFailed.
func (e *HandlerError) Is(target error) bool {
	return target == ErrHandlerFailed
}

// Route names an action within a category.
type Route struct {
	Category protocol.RequestCode
	Action   protocol.ActionCode
}

// String returns Category.Action using symbolic names, e.g. "Room.ListRoom".
func (r Route) String() string {
	return r.Category.String() + "." + r.Action.String()
}

// ParseRoute parses the form produced by Route.String.
func ParseRoute(s string) (Route, error) {
	category, action, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Route{}, fmt.Errorf("route %q is not Category.Action", s)
	}

	c, err := protocol.ParseRequestCode(category)
	if err != nil {
		return Route{}, err
	}

	a, err := protocol.ParseActionCode(action)
	if err != nil {
		return Route{}, err
	}

	return Route{Category: c, Action: a}, nil
}

// Option configures a Registry.
type Option func(*Registry)

// WithResponseCache memoises the results of the given routes in store for
// ttl. Only routes whose results depend on nothing but the payload belong
// here.
func WithResponseCache(store respcache.Store, ttl time.Duration, routes ...Route) Option {
	return func(r *Registry) {
		r.cache = store
		r.cacheTTL = ttl
		for _, route := range routes {
			r.cachedRoutes[route] = struct{}{}
		}
	}
}

// Registry maps request categories to handlers.
type Registry struct {
	mu           sync.RWMutex
	handlers     map[protocol.RequestCode]Operations
	frozen       bool
	cache        respcache.Store
	cacheTTL     time.Duration
	cachedRoutes map[Route]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		handlers:     make(map[protocol.RequestCode]Operations),
		cachedRoutes: make(map[Route]struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register installs handler for category.
//
// Parameters:
//   - category: The request category served by handler
//   - handler: The handler; its Operations table is copied
//
// Returns:
//   - ErrDuplicateCategory if category already has a handler
//   - ErrRegistryFrozen after Freeze
//   - An error if handler is nil or lists a nil operation
func (r *Registry) Register(category protocol.RequestCode, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("nil handler for %s", category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}

	if _, exists := r.handlers[category]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, category)
	}

	ops := make(Operations)
	for action, op := range handler.Operations() {
		route := Route{Category: category, Action: action}
		if op == nil {
			return fmt.Errorf("nil operation for %s", route)
		}

		if _, cached := r.cachedRoutes[route]; cached && r.cache != nil {
			op = Cached(r.cache, r.cacheTTL, route, op)
		}

		ops[action] = op
	}

	r.handlers[category] = ops
	return nil
}

// Freeze rejects further registrations. The server freezes its registry
// when it starts.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Routes lists every registered route, ordered by category then action.
func (r *Registry) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []Route
	for category, ops := range r.handlers {
		for action := range ops {
			routes = append(routes, Route{Category: category, Action: action})
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Category != routes[j].Category {
			return routes[i].Category < routes[j].Category
		}
		return routes[i].Action < routes[j].Action
	})

	return routes
}

// IsCached reports whether results of route are served from the response
// cache.
func (r *Registry) IsCached(route Route) bool {
	_, ok := r.cachedRoutes[route]
	return ok && r.cache != nil
}

// Dispatch runs the operation registered for (category, action).
//
// Parameters:
//   - ctx: Request context; carries the connection id (see WithConnectionID)
//   - category: The frame's request category
//   - action: The frame's action
//   - payload: The frame's payload
//
// Returns:
//   - The operation's result; empty means no response
//   - ErrUnknownCategory or ErrUnknownAction (wrapped) when nothing is
//     registered, in which case no operation runs
//   - A *HandlerError when the operation fails or panics
func (r *Registry) Dispatch(ctx context.Context, category protocol.RequestCode, action protocol.ActionCode, payload string) (string, error) {
	route := Route{Category: category, Action: action}

	r.mu.RLock()
	ops, ok := r.handlers[category]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	op, ok := ops[action]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, route)
	}

	return invoke(ctx, route, op, payload)
}

// Invalidate drops cached responses for routes. It is a no-op without a
// response cache.
func (r *Registry) Invalidate(ctx context.Context, routes ...Route) error {
	if r.cache == nil {
		return nil
	}

	for _, route := range routes {
		if _, err := r.cache.DeleteByPrefix(ctx, cachePrefix(route)); err != nil {
			return fmt.Errorf("invalidate %s: %w", route, err)
		}
	}

	return nil
}

func invoke(ctx context.Context, route Route, op Operation, payload string) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = ""
			err = &HandlerError{Route: route, Err: fmt.Errorf("panic: %v", rec), Stack: debug.Stack()}
		}
	}()

	result, err = op(ctx, payload)
	if err != nil {
		return "", &HandlerError{Route: route, Err: err}
	}

	return result, nil
}
