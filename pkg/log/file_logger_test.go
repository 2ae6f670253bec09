package log

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	for _, id := range []string{"req-1", "req-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), RequestID: id, Layer: LayerTransport})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var ids []string
	for {
		e, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		ids = append(ids, e.RequestID)
	}
	if len(ids) != 2 || ids[0] != "req-1" || ids[1] != "req-2" {
		t.Errorf("events = %v, want [req-1 req-2]", ids)
	}
}

func TestFileLoggerCloseIdempotent(t *testing.T) {
	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "test.slog"))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	if err := logger.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// Logging after close is ignored.
	logger.Log(Event{RequestID: "late"})
}

func TestFileLoggerThreadSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	const numGoroutines = 8
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategoryMessage})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			if err != io.EOF {
				t.Fatalf("Next failed: %v", err)
			}
			break
		}
		count++
	}
	if count != numGoroutines*eventsPerGoroutine {
		t.Errorf("read %d events, want %d", count, numGoroutines*eventsPerGoroutine)
	}
}

func TestFileLoggerCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "device.slog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		t.Errorf("log file mode = %o, want owner-only", perm)
	}
}

func TestFileLoggerReportsWriteFailures(t *testing.T) {
	var buf bytes.Buffer
	errLog := slog.New(slog.NewTextHandler(&buf, nil))

	logger, err := NewFileLogger(filepath.Join(t.TempDir(), "test.slog"), WithErrorLogger(errLog))
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	// Pull the file out from under the encoder.
	logger.file.Close()

	for i := 0; i < 3; i++ {
		logger.Log(Event{Timestamp: time.Now(), RequestID: "req-lost"})
	}

	if got := logger.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if n := strings.Count(buf.String(), "protocol log write failed"); n != 1 {
		t.Errorf("write failure logged %d times, want 1: %s", n, buf.String())
	}
}
