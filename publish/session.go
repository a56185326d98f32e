package publish

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// TrackKind classifies a published track.
type TrackKind int

// Track kinds.
const (
	TrackVideo TrackKind = iota
	TrackAudio
	TrackCaptions
)

func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackCaptions:
		return "captions"
	default:
		return "unknown"
	}
}

// Delivery priorities per track kind (lower is more urgent). Video and
// audio share a priority so neither starves under congestion.
const (
	PriorityVideo    byte = 128
	PriorityAudio    byte = 128
	PriorityCaptions byte = 200
)

// Track describes one deliverable track of a session.
type Track struct {
	Name     string
	Kind     TrackKind
	Priority byte
}

// subscriberBuffer is the per-subscriber object channel depth. A subscriber
// that falls this far behind starts losing the incoming objects.
const subscriberBuffer = 64

// subscriber is one consumer attached to a track feed.
type subscriber struct {
	id    string
	ch    chan *Object
	drops atomic.Int64
}

// trackFeed fans one track's objects out to its subscribers.
type trackFeed struct {
	track Track
	alias uint64

	mu   sync.RWMutex
	subs map[string]*subscriber
}

// send delivers obj to every subscriber without blocking: a full channel
// drops the incoming object and counts it.
func (f *trackFeed) send(obj *Object) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		select {
		case sub.ch <- obj:
		default:
			sub.drops.Add(1)
		}
	}
}

func (f *trackFeed) subscribe(id string) *subscriber {
	sub := &subscriber{id: id, ch: make(chan *Object, subscriberBuffer)}
	f.mu.Lock()
	f.subs[id] = sub
	f.mu.Unlock()
	return sub
}

func (f *trackFeed) unsubscribe(id string) {
	f.mu.Lock()
	delete(f.subs, id)
	f.mu.Unlock()
}

func (f *trackFeed) subscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Session is one named collection of tracks built by the pipeline. Tracks
// are fixed at creation; subscribers can only attach once the session has
// been published.
type Session struct {
	id  string
	log *slog.Logger

	feeds     map[string]*trackFeed
	order     []string
	published atomic.Bool
}

func newSession(id string, tracks []Track, log *slog.Logger) *Session {
	s := &Session{
		id:    id,
		log:   log.With("session", id),
		feeds: make(map[string]*trackFeed, len(tracks)),
	}
	for i, t := range tracks {
		s.feeds[t.Name] = &trackFeed{
			track: t,
			alias: uint64(i),
			subs:  make(map[string]*subscriber),
		}
		s.order = append(s.order, t.Name)
	}
	return s
}

// ID returns the session name subscribers request.
func (s *Session) ID() string { return s.id }

// Published reports whether the session is visible to subscribers.
func (s *Session) Published() bool { return s.published.Load() }

// Tracks lists the session's tracks in registration order.
func (s *Session) Tracks() []Track {
	tracks := make([]Track, 0, len(s.order))
	for _, name := range s.order {
		tracks = append(tracks, s.feeds[name].track)
	}
	return tracks
}

// Write fans an object out to the subscribers of the named track. Writing
// to an unpublished session is allowed; the objects go nowhere until
// subscribers attach.
func (s *Session) Write(trackName string, obj *Object) error {
	feed, ok := s.feeds[trackName]
	if !ok {
		return fmt.Errorf("track %q: %w", trackName, ErrUnknownTrack)
	}
	feed.send(obj)
	return nil
}

// SubscriberCount returns the total subscribers across all tracks.
func (s *Session) SubscriberCount() int {
	n := 0
	for _, feed := range s.feeds {
		n += feed.subscriberCount()
	}
	return n
}

func (s *Session) feed(trackName string) (*trackFeed, bool) {
	f, ok := s.feeds[trackName]
	return f, ok
}
