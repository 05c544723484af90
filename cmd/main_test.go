package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestRunEveryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var runs int64
	done := make(chan struct{})
	go func() {
		runEvery(ctx, 5*time.Millisecond, "test job", quietLogger(), func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&runs) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runEvery did not stop after context cancel")
	}
}

func TestRunEveryJobsRunIndependently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Медленная задача висит до конца теста и не должна
	// задерживать тики быстрой, запущенной отдельной горутиной
	block := make(chan struct{})
	defer close(block)
	go runEvery(ctx, 5*time.Millisecond, "slow job", quietLogger(), func(context.Context) error {
		<-block
		return nil
	})

	var fast int64
	go runEvery(ctx, 5*time.Millisecond, "fast job", quietLogger(), func(context.Context) error {
		atomic.AddInt64(&fast, 1)
		return nil
	})

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&fast) >= 3
	}, time.Second, time.Millisecond)
}
