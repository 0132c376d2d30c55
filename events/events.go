// Package events implements the best-effort, synchronous event
// notification contract described in spec.md §4.10 and §9: a capability
// set of named events with borrowed payloads, backed by a registry keyed
// on event name. It is the engine's only public hook for the REST
// front-end and CLI glue that spec.md places out of scope.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Name enumerates the events the engine emits.
type Name string

const (
	Add               Name = "add"
	Update            Name = "update"
	Delete            Name = "delete"
	CreateTable       Name = "createTable"
	DeleteTable       Name = "deleteTable"
	CreateIndex       Name = "createIndex"
	CommitTransaction Name = "commitTransaction"
	RollbackTransaction Name = "rollbackTransaction"
)

// Handler receives a borrowed payload for one event occurrence.
// Mutating the payload is undefined behavior (spec.md §5).
type Handler func(payload interface{})

// Emitter is a registry of handlers keyed by event name, guarded by mu
// so On and Emit are safe to call concurrently; dispatch itself is
// synchronous on the calling goroutine, matching the facade's commit
// path.
type Emitter struct {
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	handlers map[Name][]Handler
}

func New(logger *zap.SugaredLogger) *Emitter {
	return &Emitter{
		logger:   logger,
		handlers: make(map[Name][]Handler),
	}
}

// On registers handler for the given event. Registration order is
// preserved as dispatch order.
func (e *Emitter) On(name Name, handler Handler) {
	e.mu.Lock()
	e.handlers[name] = append(e.handlers[name], handler)
	e.mu.Unlock()
}

// Emit synchronously invokes every handler registered for name. A
// panicking or otherwise misbehaving handler is isolated with recover so
// it cannot corrupt the caller's commit path; the failure is logged and
// swallowed, per spec.md §4.10 ("listener failure must not affect engine
// correctness").
func (e *Emitter) Emit(name Name, payload interface{}) {
	e.mu.RLock()
	handlers := append([]Handler{}, e.handlers[name]...)
	e.mu.RUnlock()

	for _, h := range handlers {
		e.dispatch(name, h, payload)
	}
}

func (e *Emitter) dispatch(name Name, h Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Warnf("event handler for %s panicked: %v", name, r)
			}
		}
	}()
	h(payload)
}
