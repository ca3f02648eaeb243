package ratelimit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		bytesPerSecond int64
		expectNil      bool
	}{
		{"Valid rate", 1024, false},
		{"Zero rate (unlimited)", 0, true},
		{"Negative rate (unlimited)", -1, true},
		{"Very low rate", 1, false},
		{"High rate", 10 * 1024 * 1024, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.bytesPerSecond)
			if tt.expectNil && limiter != nil {
				t.Errorf("Expected nil limiter for rate %d, got non-nil", tt.bytesPerSecond)
			}
			if !tt.expectNil && limiter == nil {
				t.Errorf("Expected non-nil limiter for rate %d, got nil", tt.bytesPerSecond)
			}
			if limiter != nil && limiter.Limit() != tt.bytesPerSecond {
				t.Errorf("Limit() = %d, want %d", limiter.Limit(), tt.bytesPerSecond)
			}
		})
	}

	var nilLimiter *Limiter
	if nilLimiter.Limit() != 0 {
		t.Error("nil limiter should report 0")
	}
}

func TestNewReader(t *testing.T) {
	reader := bytes.NewReader([]byte("test data"))

	// With nil limiter, should return original reader
	if NewReader(context.Background(), reader, nil) != reader {
		t.Error("Expected original reader when limiter is nil")
	}

	if NewReader(context.Background(), reader, New(1024)) == reader {
		t.Error("Expected wrapped reader when limiter is non-nil")
	}
}

func TestNewWriter(t *testing.T) {
	var buf bytes.Buffer

	if NewWriter(context.Background(), &buf, nil) != &buf {
		t.Error("Expected original writer when limiter is nil")
	}

	if NewWriter(context.Background(), &buf, New(1024)) == &buf {
		t.Error("Expected wrapped writer when limiter is non-nil")
	}
}

func TestReader_LargeTransfer(t *testing.T) {
	t.Parallel()
	data := testData(10 * 1024)

	// 5KB/s with a 5KB burst: the second half waits about one second.
	reader := NewReader(context.Background(), bytes.NewReader(data), New(5*1024))

	start := time.Now()
	result, err := io.ReadAll(reader)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(data, result) {
		t.Error("Data mismatch after rate-limited read")
	}
	if duration < 700*time.Millisecond {
		t.Errorf("Large read completed too quickly (%v), rate limiting may not be working", duration)
	}
	if duration > 3*time.Second {
		t.Errorf("Large read took too long (%v), possible performance issue", duration)
	}
}

func TestWriter_LargeTransfer(t *testing.T) {
	t.Parallel()
	data := testData(10 * 1024)

	var buf bytes.Buffer
	writer := NewWriter(context.Background(), &buf, New(5*1024))

	start := time.Now()
	n, err := writer.Write(data)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, got %d", len(data), n)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("Data mismatch after rate-limited write")
	}
	if duration < 700*time.Millisecond {
		t.Errorf("Large write completed too quickly (%v), rate limiting may not be working", duration)
	}
	if duration > 3*time.Second {
		t.Errorf("Large write took too long (%v), possible performance issue", duration)
	}
}

func TestWriter_SharedLimiter(t *testing.T) {
	t.Parallel()
	limiter := New(4 * 1024)

	// Two writers drawing from one bucket behave like one 8KB write.
	start := time.Now()
	for range 2 {
		var buf bytes.Buffer
		if _, err := NewWriter(context.Background(), &buf, limiter).Write(testData(4 * 1024)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if d := time.Since(start); d < 700*time.Millisecond {
		t.Errorf("shared limiter did not throttle (%v)", d)
	}
}

func TestWriter_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := New(1024)
	var buf bytes.Buffer
	n, err := NewWriter(ctx, &buf, limiter).Write(testData(4 * 1024))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n >= 4*1024 {
		t.Errorf("write should have stopped early, wrote %d bytes", n)
	}
}

func TestUnlimitedRate(t *testing.T) {
	data := testData(10 * 1024)

	// Nil limiter should not throttle
	reader := NewReader(context.Background(), bytes.NewReader(data), nil)

	start := time.Now()
	result, err := io.ReadAll(reader)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(result) != len(data) {
		t.Errorf("Expected to read %d bytes, got %d", len(data), len(result))
	}
	if duration > 100*time.Millisecond {
		t.Errorf("Unlimited read took too long (%v)", duration)
	}
}

func BenchmarkWriter(b *testing.B) {
	data := testData(1024)
	limiter := New(1024 * 1024 * 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		if _, err := NewWriter(context.Background(), &buf, limiter).Write(data); err != nil {
			b.Fatal(err)
		}
	}
}
