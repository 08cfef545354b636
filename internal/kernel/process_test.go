package kernel

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeWorker is a shell script speaking the worker protocol: announce
// ready, then answer the first execute request with a canned stream and
// idle frame.
const fakeWorker = `echo '{"type":"ready"}'
read line
echo '{"type":"stream","parent_id":"p1","name":"stdout","text":"hi"}'
echo '{"type":"status","parent_id":"p1","execution_state":"idle"}'
cat > /dev/null`

func startFakeWorker(t *testing.T) Transport {
	t.Helper()
	r := NewExecRuntime("sh", []string{"-c", fakeWorker}, 2*time.Second)
	transport, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = transport.Stop() })
	return transport
}

func TestStartWaitsForReady(t *testing.T) {
	transport := startFakeWorker(t)

	// Nothing arrives before a submission
	if _, err := transport.Poll(50 * time.Millisecond); !errors.Is(err, ErrPollTimeout) {
		t.Errorf("Poll before submit = %v, want ErrPollTimeout", err)
	}
}

func TestStartTimeout(t *testing.T) {
	r := NewExecRuntime("sleep", []string{"10"}, 200*time.Millisecond)
	start := time.Now()
	_, err := r.Start(context.Background())
	if !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("Start() error = %v, want ErrStartTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Start() took %v, want bounded by startup timeout", elapsed)
	}
}

func TestStartMissingCommand(t *testing.T) {
	r := NewExecRuntime("definitely-not-a-real-binary-4711", nil, time.Second)
	if _, err := r.Start(context.Background()); err == nil {
		t.Error("Start() with missing command = nil error")
	}
}

func TestSubmitAndPoll(t *testing.T) {
	transport := startFakeWorker(t)

	id, err := transport.Submit("1 + 1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id == "" {
		t.Fatal("Submit() returned empty id")
	}

	msg, err := transport.Poll(2 * time.Second)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if msg.Type != "stream" || msg.Text != "hi" || msg.ParentID != "p1" {
		t.Errorf("Poll() = %+v", msg)
	}

	msg, err = transport.Poll(2 * time.Second)
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if msg.Type != "status" || msg.ExecutionState != "idle" {
		t.Errorf("Poll() = %+v", msg)
	}

	if _, err := transport.Poll(100 * time.Millisecond); !errors.Is(err, ErrPollTimeout) {
		t.Errorf("Poll() after idle = %v, want ErrPollTimeout", err)
	}
}

func TestBurstDeliversEveryFrame(t *testing.T) {
	// 500 frames back to back overflow any fixed buffer unless the reader
	// blocks; every frame and the trailing idle must still come through.
	const burst = `echo '{"type":"ready"}'
read line
i=0
while [ $i -lt 500 ]; do
  echo '{"type":"stream","parent_id":"p1","name":"stdout","text":"chunk"}'
  i=$((i+1))
done
echo '{"type":"status","parent_id":"p1","execution_state":"idle"}'
cat > /dev/null`

	r := NewExecRuntime("sh", []string{"-c", burst}, 2*time.Second)
	transport, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = transport.Stop() })

	if _, err := transport.Submit("burst"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	streams := 0
	deadline := time.Now().Add(10 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("idle never arrived; %d of 500 stream frames seen", streams)
		}
		msg, err := transport.Poll(100 * time.Millisecond)
		if err != nil {
			if errors.Is(err, ErrPollTimeout) {
				continue
			}
			t.Fatalf("Poll() error = %v after %d frames", err, streams)
		}
		if msg.Type == "status" && msg.ExecutionState == "idle" {
			break
		}
		if msg.Type == "stream" {
			streams++
		}
	}
	if streams != 500 {
		t.Errorf("stream frames = %d, want 500", streams)
	}
}

func TestStopUnblocksStalledReader(t *testing.T) {
	// Worker floods far past the buffer while nothing polls; Stop must
	// still return promptly.
	const flood = `echo '{"type":"ready"}'
i=0
while [ $i -lt 300 ]; do
  echo '{"type":"stream","parent_id":"p1","name":"stdout","text":"x"}'
  i=$((i+1))
done
cat > /dev/null`

	r := NewExecRuntime("sh", []string{"-c", flood}, 2*time.Second)
	transport, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(200 * time.Millisecond) // let the buffer fill

	stopped := make(chan error, 1)
	go func() { stopped <- transport.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() hung on a stalled reader")
	}
}

func TestStopIdempotent(t *testing.T) {
	transport := startFakeWorker(t)

	if err := transport.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := transport.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	if _, err := transport.Submit("x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit() after Stop = %v, want ErrClosed", err)
	}
	if err := transport.Interrupt(); !errors.Is(err, ErrClosed) {
		t.Errorf("Interrupt() after Stop = %v, want ErrClosed", err)
	}
}

func TestPollAfterWorkerExit(t *testing.T) {
	r := NewExecRuntime("sh", []string{"-c", `echo '{"type":"ready"}'`}, 2*time.Second)
	transport, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = transport.Stop() })

	// Worker exits right after the handshake; the channel drains closed
	if _, err := transport.Poll(2 * time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Poll() after exit = %v, want ErrClosed", err)
	}
}
