package simcore_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antonzymin-eng/simcore"
)

func TestPoolExecutesTasks(t *testing.T) {
	pool := simcore.NewThreadPool(2)
	defer pool.Shutdown()

	var mu sync.Mutex
	count := 0
	var futures []*simcore.TaskFuture
	for i := 0; i < 10; i++ {
		futures = append(futures, pool.Submit(func() error {
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		}))
	}
	for _, f := range futures {
		if err := f.Wait(); err != nil {
			t.Fatalf("task failed: %v", err)
		}
	}
	if count != 10 {
		t.Fatalf("expected 10 executions, got %d", count)
	}
}

func TestFutureCarriesTaskError(t *testing.T) {
	pool := simcore.NewThreadPool(1)
	defer pool.Shutdown()

	sentinel := errors.New("task failed")
	f := pool.Submit(func() error { return sentinel })
	if err := f.Wait(); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	<-f.Done()
	if !errors.Is(f.Err(), sentinel) {
		t.Fatalf("Err should match Wait, got %v", f.Err())
	}
}

func TestTaskPanicBecomesError(t *testing.T) {
	pool := simcore.NewThreadPool(1)
	defer pool.Shutdown()

	f := pool.Submit(func() error { panic("boom") })
	err := f.Wait()
	if err == nil {
		t.Fatal("panicking task should fail its future")
	}
	if !strings.Contains(err.Error(), "panic") {
		t.Fatalf("expected panic in error, got %v", err)
	}

	// The worker survives the panic.
	if err := pool.Submit(func() error { return nil }).Wait(); err != nil {
		t.Fatalf("worker should still accept tasks: %v", err)
	}
}

func TestSubmitAfterShutdownFailsFast(t *testing.T) {
	pool := simcore.NewThreadPool(1)
	pool.Shutdown()

	done := make(chan error, 1)
	go func() {
		done <- pool.Submit(func() error { return nil }).Wait()
	}()
	select {
	case err := <-done:
		if !errors.Is(err, simcore.ErrPoolShutdown) {
			t.Fatalf("expected ErrPoolShutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit after shutdown must not hang")
	}
}

func TestSubmitRacingShutdownAlwaysResolves(t *testing.T) {
	deadline := time.After(10 * time.Second)
	for i := 0; i < 200; i++ {
		pool := simcore.NewThreadPool(2)
		futures := make(chan *simcore.TaskFuture, 16)

		var wg sync.WaitGroup
		for s := 0; s < 4; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 4; j++ {
					futures <- pool.Submit(func() error { return nil })
				}
			}()
		}
		pool.Shutdown()
		wg.Wait()
		close(futures)

		// Every future must resolve, whether its task ran, was drained, or
		// landed in the queue after the drain.
		for f := range futures {
			select {
			case <-f.Done():
			case <-deadline:
				t.Fatal("a submitted task's future never resolved")
			}
		}
	}
}

func TestNilTaskFails(t *testing.T) {
	pool := simcore.NewThreadPool(1)
	defer pool.Shutdown()

	if err := pool.Submit(nil).Wait(); !errors.Is(err, simcore.ErrPoolShutdown) {
		t.Fatalf("expected ErrPoolShutdown for nil task, got %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := simcore.NewThreadPool(2)
	pool.Shutdown()
	pool.Shutdown()
}

func TestPoolMetrics(t *testing.T) {
	pool := simcore.NewThreadPool(3)
	defer pool.Shutdown()

	if pool.WorkerCount() != 3 {
		t.Fatalf("expected 3 workers, got %d", pool.WorkerCount())
	}

	f := pool.Submit(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err := f.Wait(); err != nil {
		t.Fatalf("task failed: %v", err)
	}

	if pool.AverageTaskTime() <= 0 {
		t.Fatal("average task time should be recorded")
	}
	info := pool.Info()
	if info.Workers != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestDefaultWorkerCountIsPositive(t *testing.T) {
	pool := simcore.NewThreadPool(0)
	defer pool.Shutdown()
	if pool.WorkerCount() <= 0 {
		t.Fatalf("expected positive worker count, got %d", pool.WorkerCount())
	}
}
