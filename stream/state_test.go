package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Lifecycle(t *testing.T) {
	m := newStateMachine()
	assert.Equal(t, StateClosed, m.Current())

	require.NoError(t, m.transition(StateNegotiating))
	require.NoError(t, m.transition(StateOpen))
	require.NoError(t, m.transition(StatePaused))
	require.NoError(t, m.transition(StateOpen))
	require.NoError(t, m.transition(StateError))
	require.NoError(t, m.transition(StateNegotiating)) // reconnect recovery
	require.NoError(t, m.transition(StateOpen))
	require.NoError(t, m.transition(StateClosed))
}

func TestStateMachine_RejectsIllegalTransitions(t *testing.T) {
	m := newStateMachine()

	// CLOSED can only negotiate.
	assert.Error(t, m.transition(StateOpen))
	assert.Error(t, m.transition(StatePaused))
	assert.Equal(t, StateClosed, m.Current())

	require.NoError(t, m.transition(StateNegotiating))
	assert.Error(t, m.transition(StatePaused))
}

func TestStateMachine_CompareAndTransition(t *testing.T) {
	m := newStateMachine()
	require.NoError(t, m.transition(StateNegotiating))
	require.NoError(t, m.transition(StateOpen))

	assert.True(t, m.compareAndTransition(StateOpen, StatePaused))
	assert.False(t, m.compareAndTransition(StateOpen, StatePaused)) // already paused
	assert.Equal(t, StatePaused, m.Current())
}
