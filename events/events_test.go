package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitDispatchesToAllRegisteredHandlersInOrder(t *testing.T) {
	e := New(nil)
	var order []int
	e.On(Add, func(payload interface{}) { order = append(order, 1) })
	e.On(Add, func(payload interface{}) { order = append(order, 2) })

	e.Emit(Add, nil)
	assert.Equal(t, []int{1, 2}, order)
}

func TestEmitPassesPayloadThrough(t *testing.T) {
	e := New(nil)
	var got interface{}
	e.On(Update, func(payload interface{}) { got = payload })

	e.Emit(Update, map[string]interface{}{"table": "widgets"})
	assert.Equal(t, map[string]interface{}{"table": "widgets"}, got)
}

func TestEmitWithNoHandlersIsNoop(t *testing.T) {
	e := New(nil)
	assert.NotPanics(t, func() { e.Emit(Delete, nil) })
}

func TestEmitIsolatesPanickingHandler(t *testing.T) {
	e := New(nil)
	var secondCalled bool
	e.On(CreateTable, func(payload interface{}) { panic("boom") })
	e.On(CreateTable, func(payload interface{}) { secondCalled = true })

	assert.NotPanics(t, func() { e.Emit(CreateTable, nil) })
	assert.True(t, secondCalled)
}
