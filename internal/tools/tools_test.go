package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	id     string
	should bool
	calls  int
	run    func() ([]Event, error)
	guard  func() bool
}

func (f *fakeTool) ID() string             { return f.id }
func (f *fakeTool) Name() string           { return "Fake " + f.id }
func (f *fakeTool) Description() string    { return "does " + f.id }
func (f *fakeTool) ShouldRun(Context) bool {
	if f.guard != nil {
		return f.guard()
	}
	return f.should
}
func (f *fakeTool) Run(context.Context, Context) ([]Event, error) {
	f.calls++
	if f.run == nil {
		return []Event{{Kind: "done", Title: f.id}}, nil
	}
	return f.run()
}

func newFake(id string) *fakeTool { return &fakeTool{id: id, should: true} }

func TestRegistry_RejectsDuplicatesAndKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newFake("b")))
	require.NoError(t, reg.Register(newFake("a")))
	assert.Error(t, reg.Register(newFake("a")))
	assert.Error(t, reg.Register(newFake(" ")))

	assert.Equal(t, []string{"b", "a"}, reg.IDs())
	_, ok := reg.Get("a")
	assert.True(t, ok)
	_, ok = reg.Get("c")
	assert.False(t, ok)
}

func TestBootstrap_SkipsDisabled(t *testing.T) {
	reg, err := Bootstrap([]string{" alerts ", ""}, newFake("alerts"), newFake("notes"))
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, reg.IDs())

	_, err = Bootstrap(nil, newFake("x"), newFake("x"))
	assert.Error(t, err)
}

func TestRegistry_Capabilities(t *testing.T) {
	reg, err := Bootstrap(nil, newFake("a"), newFake("b"))
	require.NoError(t, err)

	caps := reg.Capabilities(map[string]bool{"a": false})
	require.Len(t, caps, 1)
	assert.Equal(t, "Fake b", caps[0].Name)
	assert.Equal(t, "does b", caps[0].Description)
	assert.Len(t, reg.Capabilities(nil), 2)
}

func TestRunner_DisabledToolIsSkippedNotInvoked(t *testing.T) {
	a := newFake("alerts")
	reg, err := Bootstrap(nil, a)
	require.NoError(t, err)

	events := NewRunner(reg, zerolog.Nop()).Run(context.Background(), Context{}, map[string]bool{"alerts": false})
	require.Len(t, events, 1)
	assert.Equal(t, Event{
		ToolID:  "alerts",
		Kind:    KindSkipped,
		Title:   "Tool disabled",
		Message: "alerts is disabled for this session.",
		Data:    map[string]any{},
	}, events[0])
	assert.Zero(t, a.calls)
}

func TestRunner_ShouldRunFalseEmitsNothing(t *testing.T) {
	a := newFake("a")
	a.should = false
	reg, err := Bootstrap(nil, a)
	require.NoError(t, err)

	events := NewRunner(reg, zerolog.Nop()).Run(context.Background(), Context{}, nil)
	assert.Empty(t, events)
	assert.NotNil(t, events)
	assert.Zero(t, a.calls)
}

func TestRunner_IsolatesFailures(t *testing.T) {
	failing := newFake("failing")
	failing.run = func() ([]Event, error) { return nil, errors.New("db locked") }
	panicking := newFake("panicking")
	panicking.run = func() ([]Event, error) { panic("nil map") }
	healthy := newFake("healthy")

	reg, err := Bootstrap(nil, failing, panicking, healthy)
	require.NoError(t, err)

	events := NewRunner(reg, zerolog.Nop()).Run(context.Background(), Context{}, map[string]bool{"healthy": true})
	require.Len(t, events, 3)

	assert.Equal(t, "failing", events[0].ToolID)
	assert.Equal(t, KindError, events[0].Kind)
	assert.Equal(t, "Tool failed", events[0].Title)
	assert.Equal(t, "db locked", events[0].Message)

	assert.Equal(t, "panicking", events[1].ToolID)
	assert.Equal(t, KindError, events[1].Kind)
	assert.Contains(t, events[1].Message, "nil map")

	assert.Equal(t, "healthy", events[2].ToolID)
	assert.Equal(t, "done", events[2].Kind)
	assert.NotNil(t, events[2].Data)
	assert.Equal(t, 1, healthy.calls)
}

func TestRunner_ShouldRunPanicIsIsolated(t *testing.T) {
	broken := newFake("broken")
	broken.guard = func() bool { panic("bad predicate") }
	good := newFake("good")

	reg, err := Bootstrap(nil, broken, good)
	require.NoError(t, err)

	var events []Event
	require.NotPanics(t, func() {
		events = NewRunner(reg, zerolog.Nop()).Run(context.Background(), Context{}, nil)
	})
	require.Len(t, events, 2)

	assert.Equal(t, "broken", events[0].ToolID)
	assert.Equal(t, KindError, events[0].Kind)
	assert.Equal(t, "Tool failed", events[0].Title)
	assert.Contains(t, events[0].Message, "bad predicate")
	assert.Zero(t, broken.calls)

	assert.Equal(t, "good", events[1].ToolID)
	assert.Equal(t, 1, good.calls)
}
