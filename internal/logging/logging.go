// Package logging wires a single process-wide structured logger, following
// the global-logger shape used elsewhere in the retrieval pack: one
// *logrus.Logger, a console formatter for development, and a rotated
// daily file sink otherwise.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide logger. Components obtain a scoped entry via
// WithComponent rather than logging through the bare *logrus.Logger.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(os.Stderr)
	Logger.SetLevel(logrus.InfoLevel)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// WithComponent returns a logger entry tagged with the calling component's
// name, e.g. WithComponent("iohub").
func WithComponent(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// Configure routes the logger to the console (development) or to a
// day-rotating file under dir (logs/YYYY_MM_DD.log). It must be called
// once, at boot, before any component starts logging in earnest.
func Configure(development bool, dir string) error {
	if development {
		Logger.SetOutput(os.Stderr)
		return nil
	}
	if dir == "" {
		dir = "logs"
	}
	rw, err := newRotatingWriter(dir)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	Logger.SetOutput(rw)
	return nil
}

// rotatingWriter reopens dir/YYYY_MM_DD.log whenever the calendar day
// changes, so a long-lived process doesn't log a week's worth of entries
// into one ever-growing file. No rotation library is wired (the pack
// carries none); this is a small hand-rolled io.Writer instead.
type rotatingWriter struct {
	mu      sync.Mutex
	dir     string
	day     string
	file    *os.File
}

func newRotatingWriter(dir string) (*rotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rw := &rotatingWriter{dir: dir}
	if err := rw.rollLocked(time.Now()); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rotatingWriter) rollLocked(now time.Time) error {
	day := now.Format("2006_01_02")
	if day == rw.day && rw.file != nil {
		return nil
	}
	path := filepath.Join(rw.dir, day+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if rw.file != nil {
		_ = rw.file.Close()
	}
	rw.file = f
	rw.day = day
	return nil
}

func (rw *rotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if err := rw.rollLocked(time.Now()); err != nil {
		return 0, err
	}
	return rw.file.Write(p)
}
