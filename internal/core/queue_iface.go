package core

// Queue serializes work onto the single event loop that owns all session state.
// Post never runs fn inline; it is safe to call from any goroutine.
type Queue interface {
	Post(fn func())
}
