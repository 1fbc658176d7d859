package workflow

import (
	"sort"

	"github.com/google/uuid"
)

// Request is a pending lifecycle request routed to an executor. It is
// immutable once built: accessors hand out copies.
type Request struct {
	id        string
	eventType string
	params    map[string]any
}

// NewRequest builds a request with a fresh random identifier.
func NewRequest(eventType string, params map[string]any) *Request {
	return NewRequestWithID(uuid.NewString(), eventType, params)
}

// NewRequestWithID builds a request with a caller supplied identifier.
func NewRequestWithID(id, eventType string, params map[string]any) *Request {
	if id == "" {
		id = uuid.NewString()
	}
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return &Request{
		id:        id,
		eventType: eventType,
		params:    copied,
	}
}

// ID returns the correlation identifier of the request.
func (r *Request) ID() string {
	return r.id
}

// EventType names the lifecycle event that produced the request.
func (r *Request) EventType() string {
	return r.eventType
}

// Param returns a single request parameter.
func (r *Request) Param(key string) (any, bool) {
	v, ok := r.params[key]
	return v, ok
}

// Params returns a copy of the request parameters.
func (r *Request) Params() map[string]any {
	out := make(map[string]any, len(r.params))
	for k, v := range r.params {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (r *Request) Keys() []string {
	keys := make([]string, 0, len(r.params))
	for k := range r.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
