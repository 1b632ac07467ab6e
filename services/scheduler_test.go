package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScheduler_TriggerSkipsOverlappingRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, err := NewScheduler("@every 1h", func(context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Trigger(context.Background()) }()
	<-started

	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Trigger(context.Background()), ErrRunInProgress)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("erster Lauf endet nicht")
	}
	assert.False(t, s.Running())
}

func TestScheduler_TriggerReturnsRunError(t *testing.T) {
	boom := errors.New("boom")
	s, err := NewScheduler("@every 1h", func(context.Context) error { return boom }, zap.NewNop())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Trigger(context.Background()), boom)
	assert.False(t, s.Running())
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	_, err := NewScheduler("jede Stunde", func(context.Context) error { return nil }, zap.NewNop())
	assert.Error(t, err)
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler("@every 1h", func(context.Context) error { return nil }, zap.NewNop())
	require.NoError(t, err)
	s.Start()
	select {
	case <-s.Stop().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Stop wartet zu lange")
	}
}
