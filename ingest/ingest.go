// Package ingest tracks active source connections and hands their byte
// streams to the pipeline layer for demuxing and graph setup.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrDuplicateStream is returned when a stream key is already publishing.
var ErrDuplicateStream = errors.New("ingest: stream key already active")

// InputFormat identifies the container format of an ingested stream.
type InputFormat int

// Supported ingest container formats.
const (
	FormatMPEGTS InputFormat = iota
)

// Stats captures connection-level metrics for an ingest stream.
type Stats struct {
	BytesReceived int64  `json:"bytesReceived"`
	WriteCount    int64  `json:"writeCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream is one active source connection. The receiving transport writes
// raw container bytes into it; the pipeline reads them from Input. Closing
// happens through Registry.Unregister.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    InputFormat

	pr   *io.PipeReader
	pw   *io.PipeWriter
	done chan struct{}

	bytesReceived atomic.Int64
	writeCount    atomic.Int64
	remoteAddr    atomic.Value
}

// Write feeds received bytes into the stream pipe, updating the counters.
// It blocks until the pipeline side has consumed the bytes.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.pw.Write(p)
	s.bytesReceived.Add(int64(n))
	s.writeCount.Add(1)
	return n, err
}

// Input returns the read side of the stream pipe.
func (s *Stream) Input() io.Reader { return s.pr }

// Done is closed when the stream is unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// SetRemoteAddr stores the remote address for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the connection metrics.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		WriteCount:    s.writeCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active ingest streams by key. It is the rendezvous point
// between receiving transports and the demux/graph pipeline: the onStream
// callback is invoked asynchronously for every accepted stream.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(stream *Stream)
}

// NewRegistry creates a Registry. onStream may be nil.
func NewRegistry(onStream func(stream *Stream)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a new ingest stream under key. A second publisher on an
// already-active key is rejected with ErrDuplicateStream.
func (r *Registry) Register(key string, format InputFormat) (*Stream, error) {
	pr, pw := io.Pipe()
	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		pr:        pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, exists := r.streams[key]; exists {
		r.mu.Unlock()
		pw.Close()
		return nil, fmt.Errorf("register %q: %w", key, ErrDuplicateStream)
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(stream)
	}
	return stream, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Keys returns the keys of all active streams.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.streams))
	for k := range r.streams {
		keys = append(keys, k)
	}
	return keys
}
