package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/currencybot/core/logger"
)

func TestDispatcherKeepsChatOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 64})

	var (
		mu  sync.Mutex
		got = map[int64][]int{}
	)
	for i := 0; i < 20; i++ {
		for _, chat := range []int64{101, -202, 303} {
			chat, i := chat, i
			ctx := logger.WithUpdateMeta(context.Background(), i, chat, chat)
			err := d.Enqueue(ctx, "send.text", "sendMessage", func() error {
				if i%3 == 0 {
					time.Sleep(time.Millisecond)
				}
				mu.Lock()
				got[chat] = append(got[chat], i)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("Enqueue() error: %v", err)
			}
		}
	}
	d.Close()

	for chat, seq := range got {
		if len(seq) != 20 {
			t.Fatalf("chat %d ran %d jobs, want 20", chat, len(seq))
		}
		for i := range seq {
			if seq[i] != i {
				t.Fatalf("chat %d order = %v", chat, seq)
			}
		}
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 0})
	done := make(chan struct{})
	_ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		defer close(done)
		return errors.New("bad request (400)")
	})
	<-done
	d.Close()
	if d.ErrorCount() != 1 {
		t.Fatalf("ErrorCount() = %d, want 1", d.ErrorCount())
	}
}

func TestDispatcherClosed(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	d.Close()
	err := d.Enqueue(context.Background(), "x", "", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Enqueue() after Close = %v, want ErrQueueClosed", err)
	}
	if err := d.Enqueue(context.Background(), "x", "", nil); err == nil {
		t.Fatal("nil run must be rejected")
	}
}

func TestDispatcherRetriesServerErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		if calls.Add(1) < 3 {
			return errors.New("telegram: internal server error (502)")
		}
		return nil
	})
	d.Close()
	if calls.Load() != 3 || d.ErrorCount() != 0 {
		t.Fatalf("calls = %d, errors = %d", calls.Load(), d.ErrorCount())
	}
}

func TestDispatcherDoesNotRetryClientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	_ = d.Enqueue(context.Background(), "send.text", "sendMessage", func() error {
		calls.Add(1)
		return errors.New("telegram: chat not found (400)")
	})
	d.Close()
	if calls.Load() != 1 || d.ErrorCount() != 1 {
		t.Fatalf("calls = %d, errors = %d", calls.Load(), d.ErrorCount())
	}
}

func TestRedactAndErrorKind(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:AbC-d_e/sendMessage": EOF`)
	if got := redact(err); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF` {
		t.Fatalf("redact = %q", got)
	}
	cases := map[error]string{
		context.DeadlineExceeded:                          "timeout",
		errors.New("telegram: chat not found (400)"):      "http_4xx",
		errors.New("telegram: internal (502)"):            "http_5xx",
		errors.New("telegram: too many requests (429)"):   "flood",
		errors.New("something odd"):                       "unknown",
		&net.OpError{Op: "dial", Err: errors.New("nope")}: "dial",
	}
	for err, want := range cases {
		if got := errorKind(err); got != want {
			t.Errorf("errorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
