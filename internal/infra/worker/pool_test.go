//go:build !integration

package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ai-reply-assistant/internal/infra/worker"
	"ai-reply-assistant/internal/testutil"
)

func TestPool_RunsTasksAndSurvivesPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := worker.NewPool(2, testutil.Logger())
	p.Start(ctx)

	var ran int32
	done := make(chan struct{}, 3)
	for _, task := range []worker.Task{
		func(context.Context) error { panic("boom") },
		func(context.Context) error { atomic.AddInt32(&ran, 1); done <- struct{}{}; return nil },
		func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			done <- struct{}{}
			return errors.New("ignored")
		},
	} {
		for {
			if err := p.Submit(task); err == nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("tasks did not run")
		}
	}
	p.Stop()
	if atomic.LoadInt32(&ran) != 2 {
		t.Fatalf("ran = %d", ran)
	}
}

func TestPool_SubmitWhenSaturated(t *testing.T) {
	p := worker.NewPool(1, testutil.Logger()) // not started: nothing drains
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, worker.ErrPoolFull) {
		t.Fatalf("err = %v, want ErrPoolFull", err)
	}
	if err := p.Submit(nil); err == nil {
		t.Fatal("nil task must be rejected")
	}
}
