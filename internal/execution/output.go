package execution

import (
	"bytes"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// streamLog captures runner output and logs every chunk as it arrives.
type streamLog struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	log   zerolog.Logger
	level zerolog.Level
}

func newStreamLog(log zerolog.Logger, level zerolog.Level) *streamLog {
	return &streamLog{log: log, level: level}
}

func (s *streamLog) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Write(p)
	if chunk := strings.TrimRight(string(p), "\n"); chunk != "" {
		s.log.WithLevel(s.level).Msg(chunk)
	}
	return len(p), nil
}

func (s *streamLog) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
