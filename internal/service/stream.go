package service

import (
	"context"
	"sync"

	appErr "github.com/xxxsen/clinrag/internal/pkg/errors"
)

type EventType string

const (
	EventPageID EventType = "page_id"
	EventStep   EventType = "step"
	EventAnswer EventType = "answer"
	EventError  EventType = "error"
)

type Event struct {
	Type    EventType   `json:"type"`
	Content interface{} `json:"content"`
}

type ErrorContent struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type PageIDContent struct {
	PageID string `json:"page_id"`
	Index  int    `json:"index"`
}

// EventStream is a single-producer channel of events. The producer ends it
// with exactly one terminal event (answer or error); Close lets the consumer
// walk away, which cancels the producer's context.
type EventStream struct {
	ch        chan Event
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.Mutex
	finished  bool
}

func newEventStream(cancel context.CancelFunc) *EventStream {
	return &EventStream{
		ch:     make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Events is closed after the terminal event, or after Close.
func (s *EventStream) Events() <-chan Event {
	return s.ch
}

func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// emit delivers a non-terminal event. It reports false once the stream is
// finished or the consumer is gone.
func (s *EventStream) emit(ev Event) bool {
	s.mu.Lock()
	finished := s.finished
	s.mu.Unlock()
	if finished {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

// finish sends the terminal event and closes the channel. Later calls are
// ignored.
func (s *EventStream) finish(ev Event) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()
	select {
	case s.ch <- ev:
	case <-s.done:
	}
	close(s.ch)
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *EventStream) fail(err error) {
	s.finish(ErrorEvent(err))
}

func ErrorEvent(err error) Event {
	return Event{Type: EventError, Content: ErrorContent{Kind: appErr.Kind(err), Message: err.Error()}}
}
