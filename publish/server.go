// Package publish delivers pipeline output to subscribers over QUIC.
// Sessions are named collections of tracks; once published, subscribers
// request a session track and receive keyframe-aligned groups of
// varint-framed objects on unidirectional streams.
package publish

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/loom/certs"
)

// Session registry errors.
var (
	ErrDuplicateSession = errors.New("publish: session already exists")
	ErrUnknownSession   = errors.New("publish: unknown session")
	ErrNotPublished     = errors.New("publish: session not published")
	ErrUnknownTrack     = errors.New("publish: unknown track")
)

// Subscribe response status codes.
const (
	statusOK byte = iota
	statusUnknownSession
	statusNotPublished
	statusUnknownTrack
)

// alpnProtocol identifies the publish protocol during the TLS handshake.
const alpnProtocol = "loom-pub"

// maxIdleTimeout disconnects subscribers that stop acknowledging.
const maxIdleTimeout = 30 * time.Second

// groupObjectLimit bounds non-video groups; video groups are
// keyframe-aligned instead.
const groupObjectLimit = 64

// maxRequestStringLen bounds the session and track names a subscriber may
// send.
const maxRequestStringLen = 256

// Server owns the session registry and the QUIC listener. The pipeline
// adds a session per ingested stream, publishes it once its tracks are
// flowing, and removes it when the source disconnects.
type Server struct {
	log  *slog.Logger
	addr string
	cert *certs.CertInfo

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewServer creates a publish server listening on addr with the given
// certificate. If log is nil, slog.Default() is used.
func NewServer(addr string, cert *certs.CertInfo, log *slog.Logger) (*Server, error) {
	if cert == nil {
		return nil, errors.New("publish: cert is required")
	}
	if addr == "" {
		return nil, errors.New("publish: addr is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "publish"),
		addr:     addr,
		cert:     cert,
		sessions: make(map[string]*Session),
	}, nil
}

// AddSession registers a new unpublished session with a fixed track list.
func (s *Server) AddSession(id string, tracks []Track) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; exists {
		return nil, fmt.Errorf("session %q: %w", id, ErrDuplicateSession)
	}
	session := newSession(id, tracks, s.log)
	s.sessions[id] = session
	s.log.Info("session added", "session", id, "tracks", len(tracks))
	return session, nil
}

// PublishSession makes a session visible to subscribers.
func (s *Server) PublishSession(id string) error {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrUnknownSession)
	}
	session.published.Store(true)
	s.log.Info("session published", "session", id)
	return nil
}

// RemoveSession unregisters a session. Attached subscribers keep draining
// their buffered objects and then stall until their connection times out.
func (s *Server) RemoveSession(id string) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		s.log.Info("session removed", "session", id)
	}
}

// Session returns a registered session by id.
func (s *Server) Session(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Serve accepts subscriber connections until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{s.cert.TLSCert},
		NextProtos:   []string{alpnProtocol},
	}
	ln, err := quic.ListenAddr(s.addr, tlsConf, &quic.Config{
		MaxIdleTimeout: maxIdleTimeout,
	})
	if err != nil {
		return fmt.Errorf("QUIC listen on %s: %w", s.addr, err)
	}
	defer ln.Close()
	s.log.Info("listening", "addr", s.addr, "fingerprint", s.cert.FingerprintBase64())

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("QUIC accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	defer conn.CloseWithError(0, "")
	remote := conn.RemoteAddr().String()

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		s.log.Debug("accept request stream", "remote", remote, "error", err)
		return
	}

	sessionID, trackName, err := readSubscribeRequest(stream)
	if err != nil {
		s.log.Debug("bad subscribe request", "remote", remote, "error", err)
		return
	}

	feed, status := s.resolveTrack(sessionID, trackName)
	if err := writeSubscribeResponse(stream, status, feed); err != nil {
		s.log.Debug("subscribe response", "remote", remote, "error", err)
		return
	}
	if status != statusOK {
		s.log.Debug("subscribe rejected",
			"remote", remote, "session", sessionID, "track", trackName, "status", status)
		return
	}

	s.log.Info("subscriber attached",
		"remote", remote, "session", sessionID, "track", trackName)
	s.serveTrack(ctx, conn, feed, remote)
}

// resolveTrack maps a subscribe request to a track feed, or a rejection
// status.
func (s *Server) resolveTrack(sessionID, trackName string) (*trackFeed, byte) {
	session, ok := s.Session(sessionID)
	if !ok {
		return nil, statusUnknownSession
	}
	if !session.Published() {
		return nil, statusNotPublished
	}
	feed, ok := session.feed(trackName)
	if !ok {
		return nil, statusUnknownTrack
	}
	return feed, statusOK
}

// serveTrack streams groups of objects to one subscriber until the context
// is cancelled or the connection breaks. Each group goes on its own
// unidirectional stream.
func (s *Server) serveTrack(ctx context.Context, conn quic.Connection, feed *trackFeed, remote string) {
	sub := feed.subscribe(remote)
	defer feed.unsubscribe(remote)

	gw := groupWriter{trackAlias: feed.alias, priority: feed.track.Priority}
	video := feed.track.Kind == TrackVideo

	var stream quic.SendStream
	defer func() {
		if stream != nil {
			stream.Close()
		}
		if drops := sub.drops.Load(); drops > 0 {
			s.log.Debug("subscriber detached with drops",
				"remote", remote, "track", feed.track.Name, "drops", drops)
		}
	}()

	for {
		var obj *Object
		select {
		case obj = <-sub.ch:
		case <-ctx.Done():
			return
		}

		// Keyframes start a new group; non-video tracks roll over on a
		// fixed object count.
		rotate := stream == nil ||
			(video && obj.Keyframe) ||
			(!video && gw.objectID >= groupObjectLimit)
		if rotate {
			if video && !obj.Keyframe && stream == nil {
				continue // wait for a group-opening keyframe
			}
			if stream != nil {
				stream.Close()
			}
			var err error
			stream, err = conn.OpenUniStreamSync(ctx)
			if err != nil {
				s.log.Debug("open group stream", "remote", remote, "error", err)
				return
			}
			if err := gw.startGroup(stream); err != nil {
				s.log.Debug("write group header", "remote", remote, "error", err)
				return
			}
		}

		if err := gw.writeObject(stream, obj); err != nil {
			s.log.Debug("write object", "remote", remote, "error", err)
			return
		}
	}
}

// readSubscribeRequest parses the session and track names from the
// subscriber's request stream.
func readSubscribeRequest(r io.Reader) (sessionID, trackName string, err error) {
	br := quicvarint.NewReader(r)
	if sessionID, err = readString(br); err != nil {
		return "", "", fmt.Errorf("session name: %w", err)
	}
	if trackName, err = readString(br); err != nil {
		return "", "", fmt.Errorf("track name: %w", err)
	}
	return sessionID, trackName, nil
}

// writeSubscribeResponse writes the status byte and, on success, the track
// alias, kind, and priority.
func writeSubscribeResponse(w io.Writer, status byte, feed *trackFeed) error {
	buf := []byte{status}
	if status == statusOK {
		buf = quicvarint.Append(buf, feed.alias)
		buf = append(buf, byte(feed.track.Kind), feed.track.Priority)
	}
	_, err := w.Write(buf)
	return err
}

func readString(r quicvarint.Reader) (string, error) {
	size, err := quicvarint.Read(r)
	if err != nil {
		return "", err
	}
	if size > maxRequestStringLen {
		return "", fmt.Errorf("string length %d: %w", size, ErrBadFraming)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
