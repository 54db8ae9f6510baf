package render

import (
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a waiting indicator on the writer's line. It does nothing
// when the writer is not a terminal.
type Spinner struct {
	w       *Writer
	message string

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (w *Writer) NewSpinner(message string) *Spinner {
	return &Spinner{w: w, message: message}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil || !s.w.tty {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

func (s *Spinner) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	start := time.Now()
	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame := s.w.style(s.w.labelStyle, spinnerFrames[i%len(spinnerFrames)])
			elapsed := time.Since(start).Round(time.Second)
			s.w.Print("\r%s %s (%s)", frame, s.message, elapsed)
		}
	}
}

// Stop ends the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
	s.w.Print("\r\033[K")
}
