package logging

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
)

// FileSink appends log lines received from MQTT to <dir>/<name>.log. It is
// the receiving end of MqttLogWriter and satisfies broker.Handler.
type FileSink struct {
	mu   sync.Mutex
	file string
}

// NewFileSink creates dir if needed. The file name is the last topic
// segment, so "logs/telemetry-bridge" ends up in telemetry-bridge.log.
func NewFileSink(dir, topic string) (*FileSink, error) {
	name := path.Base(topic)
	if name == "" || name == "." || name == "/" || name == "#" || name == "+" {
		return nil, fmt.Errorf("log topic %q does not name a service", topic)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &FileSink{file: filepath.Join(dir, name+".log")}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.file }

// Handle appends one line. The file is opened per write so external log
// rotation can move it away at any time.
func (s *FileSink) Handle(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	// slog lines already end with a newline; other publishers may not.
	if len(line) == 0 || line[len(line)-1] != '\n' {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}
