package motion

import (
	"github.com/librescoot/motion-service/internal/gateway"
)

// ResponseRegistry maps outstanding correlation ids to the continuation
// consuming the matching response, so new request kinds get an id and a
// continuation instead of another magic constant in the dispatcher.
// Confined to the scheduler goroutine; no locking.
type ResponseRegistry struct {
	pending map[uint32]func(*gateway.Response)
}

func NewResponseRegistry() *ResponseRegistry {
	return &ResponseRegistry{
		pending: make(map[uint32]func(*gateway.Response)),
	}
}

// Expect installs the continuation for a correlation id, replacing any
// previous one for the same id.
func (r *ResponseRegistry) Expect(id uint32, fn func(*gateway.Response)) {
	r.pending[id] = fn
}

// Forget retires an id without running its continuation.
func (r *ResponseRegistry) Forget(id uint32) {
	delete(r.pending, id)
}

// Dispatch routes a successful response to its continuation. Returns
// false when the id is unknown; such responses belong to other
// collaborators and are not an error.
func (r *ResponseRegistry) Dispatch(rsp *gateway.Response) bool {
	fn, ok := r.pending[rsp.ID]
	if !ok {
		return false
	}
	delete(r.pending, rsp.ID)
	fn(rsp)
	return true
}
