package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStartRunsImmediatelyAndOnInterval(t *testing.T) {
	s := New()
	var runs atomic.Int32
	if err := s.Add("rates", 20*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() >= 3 })
	if !s.IsRunning() {
		t.Error("expected scheduler to be running")
	}
}

func TestStartErrors(t *testing.T) {
	s := New()
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error starting without jobs")
	}

	_ = s.Add("noop", time.Hour, func(context.Context) error { return nil })
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error on double start")
	}
}

func TestAddValidation(t *testing.T) {
	s := New()
	fn := func(context.Context) error { return nil }
	if err := s.Add("a", -time.Second, fn); err == nil {
		t.Error("expected error for negative interval")
	}
	if err := s.Add("a", time.Second, fn); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a", time.Second, fn); err == nil {
		t.Error("expected duplicate error")
	}
}

func TestManualJobNotScheduled(t *testing.T) {
	s := New()
	var runs atomic.Int32
	_ = s.Add("manual", 0, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	_ = s.Add("tick", time.Hour, func(context.Context) error { return nil })

	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	if runs.Load() != 0 {
		t.Errorf("manual job ran %d times", runs.Load())
	}
	if err := s.RunOnce(context.Background(), "manual"); err != nil {
		t.Fatal(err)
	}
	if runs.Load() != 1 {
		t.Errorf("RunOnce did not run the job")
	}
}

func TestAddWhileRunning(t *testing.T) {
	s := New()
	_ = s.Add("first", time.Hour, func(context.Context) error { return nil })
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	ran := make(chan struct{}, 1)
	err := s.Add("late", time.Hour, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job added to a running scheduler never ran")
	}
}

func TestRemoveStopsJob(t *testing.T) {
	s := New()
	var runs atomic.Int32
	_ = s.Add("weather", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() >= 1 })
	if err := s.Remove("weather"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != after {
		t.Errorf("job kept running after Remove: %d -> %d", after, runs.Load())
	}

	if err := s.Remove("weather"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second Remove error = %v, want ErrJobNotFound", err)
	}
	if len(s.Jobs()) != 0 {
		t.Errorf("Jobs() = %v, want empty", s.Jobs())
	}
}

func TestStopCancelsContext(t *testing.T) {
	s := New()
	started := make(chan struct{})
	_ = s.Add("slow", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if s.IsRunning() {
		t.Error("still running after Stop")
	}
	s.Stop()
}

func TestRunAllJoinsErrorsAndRecoversPanics(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	_ = s.Add("ok", 0, func(context.Context) error { return nil })
	_ = s.Add("fails", 0, func(context.Context) error { return boom })
	_ = s.Add("panics", 0, func(context.Context) error { panic("oops") })

	err := s.RunAll(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("RunAll error = %v, want it to wrap boom", err)
	}
	if err == nil {
		t.Fatal("expected error")
	}

	if err := s.RunOnce(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RunOnce(missing) = %v", err)
	}
}
