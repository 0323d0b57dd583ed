package chat

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Sink receives user-visible notice lines.
type Sink interface {
	Emit(text string)
}

// LogSink writes notices through logrus.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (s LogSink) Emit(text string) {
	l := s.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	l.WithField("sink", "chat").Infoln(text)
}

// MultiSink fans a line out to every sink.
type MultiSink []Sink

func (m MultiSink) Emit(text string) {
	for _, s := range m {
		if s != nil {
			s.Emit(text)
		}
	}
}

// Recorder keeps the last lines emitted; it backs /api/summary and tests.
type Recorder struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 50
	}
	return &Recorder{max: max}
}

func (r *Recorder) Emit(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
}

func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
