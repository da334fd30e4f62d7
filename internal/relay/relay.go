// Package relay implements the Log Relay: a per-hostname fan-out buffer
// between one producing worker and zero-or-more viewers. It is not a
// persistent log — state lives only in memory for the lifetime of an
// active stream.
package relay

import (
	"context"
	"log/slog"
	"sync"
)

// consumerBacklog bounds how many unsent lines may queue for a single slow
// consumer before it is dropped rather than allowed to block the producer
// or other consumers.
const consumerBacklog = 256

// Relay owns the per-hostname stream registry. The producer task for a
// hostname has sole write authority over that hostname's buffer; consumer
// tasks only read.
type Relay struct {
	bufferSize int
	logger     *slog.Logger

	mu      sync.Mutex
	streams map[string]*stream
}

// New constructs a Relay retaining at most bufferSize most-recent lines per
// hostname for late-joining viewers.
func New(bufferSize int, logger *slog.Logger) *Relay {
	if bufferSize < 1 {
		bufferSize = 5000
	}
	return &Relay{
		bufferSize: bufferSize,
		logger:     logger,
		streams:    make(map[string]*stream),
	}
}

type stream struct {
	mu        sync.Mutex
	buffer    []string
	consumers map[*consumer]struct{}
	closed    bool
}

type consumer struct {
	ch     chan string
	closed chan struct{}
	once   sync.Once
}

func (c *consumer) send(line string) (dropped bool) {
	select {
	case c.ch <- line:
		return false
	default:
		return true
	}
}

func (c *consumer) close() {
	c.once.Do(func() { close(c.closed) })
}

// openProducerStream creates a fresh stream for hostname, replacing any
// existing one. Called only from the producer path, which owns stream
// lifecycle.
func (r *Relay) openProducerStream(hostname string) *stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.streams[hostname]; ok {
		// A reconnecting producer replaces the prior stream; any consumers
		// attached to the stale stream are disconnected so viewers
		// reconnect against the fresh one.
		existing.closeAllConsumers()
	}

	s := &stream{consumers: make(map[*consumer]struct{})}
	r.streams[hostname] = s
	return s
}

func (r *Relay) closeProducerStream(hostname string, s *stream) {
	r.mu.Lock()
	if r.streams[hostname] == s {
		delete(r.streams, hostname)
	}
	r.mu.Unlock()

	s.closeAllConsumers()
}

// publishLine appends a line to hostname's buffer (evicting the oldest half
// of the buffer on overflow) and broadcasts it to every attached consumer,
// dropping any consumer whose backlog is full rather than blocking.
func (r *Relay) publishLine(s *stream, line string, bufferSize int) {
	s.mu.Lock()
	s.buffer = append(s.buffer, line)
	if len(s.buffer) > bufferSize {
		half := len(s.buffer) / 2
		s.buffer = append([]string(nil), s.buffer[half:]...)
	}

	var toDrop []*consumer
	for c := range s.consumers {
		if dropped := c.send(line); dropped {
			toDrop = append(toDrop, c)
		}
	}
	for _, c := range toDrop {
		delete(s.consumers, c)
	}
	s.mu.Unlock()

	for _, c := range toDrop {
		c.close()
	}
}

func (s *stream) closeAllConsumers() {
	s.mu.Lock()
	cs := make([]*consumer, 0, len(s.consumers))
	for c := range s.consumers {
		cs = append(cs, c)
	}
	s.consumers = make(map[*consumer]struct{})
	s.closed = true
	s.mu.Unlock()

	for _, c := range cs {
		c.close()
	}
}

// attachConsumer registers a new consumer against hostname's current
// stream, replaying its buffered backlog first. Returns nil if no producer
// is currently live for hostname.
func (r *Relay) attachConsumer(hostname string) (*stream, *consumer, []string) {
	r.mu.Lock()
	s, ok := r.streams[hostname]
	r.mu.Unlock()
	if !ok {
		return nil, nil, nil
	}

	c := &consumer{ch: make(chan string, consumerBacklog), closed: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, nil
	}
	backlog := append([]string(nil), s.buffer...)
	s.consumers[c] = struct{}{}
	return s, c, backlog
}

func (r *Relay) detachConsumer(s *stream, c *consumer) {
	s.mu.Lock()
	delete(s.consumers, c)
	s.mu.Unlock()
}

// LineSource is implemented by the worker-side websocket read loop.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

// LineSink is implemented by the viewer-side websocket write loop.
type LineSink interface {
	WriteLine(ctx context.Context, line string) error
}

// RunProducer pumps lines from src into hostname's stream until src
// returns an error (typically the worker disconnecting), at which point
// every attached consumer is closed.
func (r *Relay) RunProducer(ctx context.Context, hostname string, src LineSource) {
	s := r.openProducerStream(hostname)
	defer r.closeProducerStream(hostname, s)

	for {
		line, err := src.ReadLine(ctx)
		if err != nil {
			return
		}
		r.publishLine(s, line, r.bufferSize)
	}
}

// RunConsumer replays hostname's current backlog into sink, then streams
// new lines until sink returns an error, the consumer is dropped for a
// full backlog, or the producer disconnects.
func (r *Relay) RunConsumer(ctx context.Context, hostname string, sink LineSink) error {
	s, c, backlog := r.attachConsumer(hostname)
	if s == nil {
		return errNoProducer
	}
	defer r.detachConsumer(s, c)

	for _, line := range backlog {
		if err := sink.WriteLine(ctx, line); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return errProducerDisconnected
		case line, ok := <-c.ch:
			if !ok {
				return errProducerDisconnected
			}
			if err := sink.WriteLine(ctx, line); err != nil {
				return err
			}
		}
	}
}
