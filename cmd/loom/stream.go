package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zsiec/ccx"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/loom/demux"
	"github.com/zsiec/loom/filter"
	"github.com/zsiec/loom/ingest"
	"github.com/zsiec/loom/media"
	"github.com/zsiec/loom/pipeline"
	"github.com/zsiec/loom/publish"
	"github.com/zsiec/loom/queue"
)

// Published track names.
const (
	trackVideo    = "video"
	trackAudio    = "audio"
	trackCaptions = "captions"
)

// Filter IDs and connection IDs for the per-stream graphs.
const (
	filterIDVideoHead = 1
	filterIDVideoTail = 2
	filterIDAudioHead = 3
	filterIDAudioTail = 4

	connVideo = 1
	connAudio = 2
)

// handleStream runs the full pipeline for one ingested stream: demux the
// container, push elementary units through per-media filter graphs, and
// write the tail output into the published session. It returns when the
// source disconnects or the context is cancelled.
func (a *app) handleStream(ctx context.Context, st *ingest.Stream) {
	log := slog.With("stream", st.Key)
	log.Info("new stream from ingest")

	session, err := a.pub.AddSession(st.Key, []publish.Track{
		{Name: trackVideo, Kind: publish.TrackVideo, Priority: publish.PriorityVideo},
		{Name: trackAudio, Kind: publish.TrackAudio, Priority: publish.PriorityAudio},
		{Name: trackCaptions, Kind: publish.TrackCaptions, Priority: publish.PriorityCaptions},
	})
	if err != nil {
		log.Warn("rejecting stream", "error", err)
		return
	}
	defer a.pub.RemoveSession(st.Key)

	dmx := demux.NewDemuxer(st.Input(), log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dmx.Run(ctx)
	})
	g.Go(func() error {
		return runVideo(ctx, dmx.Video(), session, log)
	})
	g.Go(func() error {
		return runAudio(ctx, dmx.Audio(), session, log)
	})
	g.Go(func() error {
		return runCaptions(dmx.Captions(), session)
	})

	if err := a.pub.PublishSession(st.Key); err != nil {
		log.Error("publish session", "error", err)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("stream pipeline error", "error", err)
	}
	log.Info("stream ended")
}

// runVideo builds the video graph once the first access unit reveals the
// codec, then injects every unit and forwards tail output to the session.
func runVideo(ctx context.Context, units <-chan *demux.VideoUnit, session *publish.Session, log *slog.Logger) error {
	first, ok := <-units
	if !ok {
		return nil
	}
	codec := first.Codec

	head := filter.NewVideoHead(filterIDVideoHead, filter.Slave, codec, media.PixelFormatNone, queue.DefaultVideoFrames)
	tail := filter.NewTail(filterIDVideoTail, filter.Slave, 1)
	tail.SetOnFrame(func(_ int, f media.Frame) {
		payload := append([]byte(nil), f.Data()[:f.Len()]...)
		_ = session.Write(trackVideo, &publish.Object{
			PTS:      f.PTS(),
			Keyframe: demux.IsKeyframe(codec, payload),
			Payload:  payload,
		})
	})
	if err := head.Connect(&tail.Node, connVideo); err != nil {
		return err
	}

	runner := pipeline.NewRunner(log.With("media", "video"))
	if err := runner.Add(head); err != nil {
		return err
	}
	if err := runner.Add(tail); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		return runner.Run(runCtx)
	})

	inject := func(u *demux.VideoUnit) {
		vf := media.NewInterleavedVideoFrame(codec, len(u.Data))
		copy(vf.Data(), u.Data)
		vf.SetLen(len(u.Data))
		vf.SetPTS(u.PTS)
		vf.SetOriginTime(time.Now().UnixMicro())
		if err := head.Inject(vf); err != nil {
			log.Debug("video inject rejected", "error", err)
			return
		}
		runner.Wake(head.ID())
	}

	inject(first)
	for u := range units {
		inject(u)
	}

	cancel()
	return g.Wait()
}

// runAudio mirrors runVideo for the audio chain. Compressed AAC payloads
// ride in interleaved S16 frames, matching the queue layout for compressed
// audio.
func runAudio(ctx context.Context, units <-chan *demux.AudioUnit, session *publish.Session, log *slog.Logger) error {
	first, ok := <-units
	if !ok {
		return nil
	}
	sampleRate, channels := first.SampleRate, first.Channels

	head := filter.NewAudioHead(filterIDAudioHead, filter.Slave, media.AudioCodecAAC,
		sampleRate, channels, media.SampleFormatS16, queue.DefaultAudioFrames)
	tail := filter.NewTail(filterIDAudioTail, filter.Slave, 1)
	tail.SetOnFrame(func(_ int, f media.Frame) {
		payload := append([]byte(nil), f.Data()[:f.Len()]...)
		_ = session.Write(trackAudio, &publish.Object{PTS: f.PTS(), Payload: payload})
	})
	if err := head.Connect(&tail.Node, connAudio); err != nil {
		return err
	}

	runner := pipeline.NewRunner(log.With("media", "audio"))
	if err := runner.Add(head); err != nil {
		return err
	}
	if err := runner.Add(tail); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var g errgroup.Group
	g.Go(func() error {
		return runner.Run(runCtx)
	})

	bytesPerSample := channels * media.SampleFormatS16.BytesPerSample()
	inject := func(u *demux.AudioUnit) {
		samples := (len(u.Data) + bytesPerSample - 1) / bytesPerSample
		af := media.NewInterleavedAudioFrame(channels, sampleRate, samples,
			media.AudioCodecAAC, media.SampleFormatS16)
		copy(af.Data(), u.Data)
		af.SetLen(len(u.Data))
		af.SetPTS(u.PTS)
		af.SetOriginTime(time.Now().UnixMicro())
		if err := head.Inject(af); err != nil {
			log.Debug("audio inject rejected", "error", err)
			return
		}
		runner.Wake(head.ID())
	}

	inject(first)
	for u := range units {
		inject(u)
	}

	cancel()
	return g.Wait()
}

// runCaptions forwards decoded caption text straight to the session; no
// filter graph is needed for low-frequency text.
func runCaptions(frames <-chan *ccx.CaptionFrame, session *publish.Session) error {
	for cf := range frames {
		_ = session.Write(trackCaptions, &publish.Object{PTS: cf.PTS, Payload: []byte(cf.Text)})
	}
	return nil
}
