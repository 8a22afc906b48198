package types

// CallContext carries the identity of the account invoking an operation and
// the logical block height at which it executes. Every state transition
// receives it explicitly; nothing reads the caller or the clock from ambient
// state.
type CallContext struct {
	Caller Principal
	Height uint64
}

// NewCallContext returns a call context for the provided caller and height.
func NewCallContext(caller Principal, height uint64) CallContext {
	return CallContext{Caller: caller, Height: height}
}

// As returns a copy of the context with a different caller.
func (c CallContext) As(caller Principal) CallContext {
	c.Caller = caller
	return c
}

// At returns a copy of the context evaluated at another height.
func (c CallContext) At(height uint64) CallContext {
	c.Height = height
	return c
}
