// Package demux turns an MPEG-TS byte stream into elementary media units
// ready for injection into a filter graph: H264/H265 access units, AAC
// frames, and CEA-608 caption text recovered from SEI messages.
package demux

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/zsiec/ccx"

	"github.com/zsiec/loom/media"
)

// Channel buffer sizes decouple demuxing from graph injection: ~1 second
// of video and audio at typical live rates.
const (
	videoBufferSize   = 30
	audioBufferSize   = 60
	captionBufferSize = 16
)

// VideoUnit is one H264 or H265 access unit in Annex B byte order.
// Timestamps are microseconds.
type VideoUnit struct {
	Codec    media.VideoCodec
	PTS      int64
	DTS      int64
	Keyframe bool
	Data     []byte
	VPS      []byte // H265 only
	SPS      []byte
	PPS      []byte
}

// AudioUnit is one AAC frame (ADTS header included). Timestamps are
// microseconds.
type AudioUnit struct {
	PTS        int64
	Data       []byte
	SampleRate int
	Channels   int
}

// Demuxer reads an MPEG-TS stream and emits elementary units on typed
// channels. It locates the first program's video and AAC PIDs from PAT/PMT
// and assembles PES packets per PID.
type Demuxer struct {
	log *slog.Logger
	r   io.Reader

	videoCh   chan *VideoUnit
	audioCh   chan *AudioUnit
	captionCh chan *ccx.CaptionFrame

	pmtPID     uint16
	videoPID   uint16
	audioPID   uint16
	videoCodec media.VideoCodec

	video pesAssembler
	audio pesAssembler

	cea608 map[int]*ccx.CEA608Decoder
}

// NewDemuxer creates a Demuxer over r. If log is nil, slog.Default() is
// used.
func NewDemuxer(r io.Reader, log *slog.Logger) *Demuxer {
	if log == nil {
		log = slog.Default()
	}
	return &Demuxer{
		log:       log.With("component", "demuxer"),
		r:         r,
		videoCh:   make(chan *VideoUnit, videoBufferSize),
		audioCh:   make(chan *AudioUnit, audioBufferSize),
		captionCh: make(chan *ccx.CaptionFrame, captionBufferSize),
		cea608: map[int]*ccx.CEA608Decoder{
			1: ccx.NewCEA608Decoder(),
			2: ccx.NewCEA608Decoder(),
			3: ccx.NewCEA608Decoder(),
			4: ccx.NewCEA608Decoder(),
		},
	}
}

// Video returns the access-unit channel, closed when Run exits.
func (d *Demuxer) Video() <-chan *VideoUnit { return d.videoCh }

// Audio returns the AAC frame channel, closed when Run exits.
func (d *Demuxer) Audio() <-chan *AudioUnit { return d.audioCh }

// Captions returns the CEA-608 caption channel, closed when Run exits.
func (d *Demuxer) Captions() <-chan *ccx.CaptionFrame { return d.captionCh }

// Run reads TS packets until EOF or context cancellation. The output
// channels are closed on return.
func (d *Demuxer) Run(ctx context.Context) error {
	defer close(d.videoCh)
	defer close(d.audioCh)
	defer close(d.captionCh)

	buf := make([]byte, packetSize)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := io.ReadFull(d.r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.finish(ctx)
				return nil
			}
			return err
		}

		pkt, err := parseTSPacket(buf)
		if err != nil {
			d.log.Debug("skipping corrupt packet", "error", err)
			continue
		}
		d.route(ctx, pkt)
	}
}

func (d *Demuxer) route(ctx context.Context, pkt tsPacket) {
	switch pkt.pid {
	case pidPAT:
		if pid, ok := parsePAT(pkt.payload); ok && pid != d.pmtPID {
			d.pmtPID = pid
			d.log.Debug("PAT parsed", "pmt_pid", pid)
		}
	case d.pmtPID:
		if d.pmtPID == 0 {
			return
		}
		d.handlePMT(pkt.payload)
	case d.videoPID:
		if d.videoPID == 0 {
			return
		}
		if pes := d.video.push(pkt); pes != nil {
			d.handleVideoPES(ctx, pes)
		}
	case d.audioPID:
		if d.audioPID == 0 {
			return
		}
		if pes := d.audio.push(pkt); pes != nil {
			d.handleAudioPES(ctx, pes)
		}
	}
}

func (d *Demuxer) handlePMT(payload []byte) {
	streams, ok := parsePMT(payload)
	if !ok {
		return
	}
	for _, es := range streams {
		switch es.streamType {
		case streamTypeH264:
			if d.videoPID == 0 {
				d.videoPID = es.pid
				d.videoCodec = media.VideoCodecH264
				d.log.Info("video stream found", "pid", es.pid, "codec", d.videoCodec)
			}
		case streamTypeH265:
			if d.videoPID == 0 {
				d.videoPID = es.pid
				d.videoCodec = media.VideoCodecH265
				d.log.Info("video stream found", "pid", es.pid, "codec", d.videoCodec)
			}
		case streamTypeAAC:
			if d.audioPID == 0 {
				d.audioPID = es.pid
				d.log.Info("audio stream found", "pid", es.pid, "codec", "aac")
			}
		}
	}
}

func (d *Demuxer) handleVideoPES(ctx context.Context, pkt []byte) {
	pes, err := parsePES(pkt)
	if err != nil {
		d.log.Debug("bad video PES", "error", err)
		return
	}

	var au accessUnit
	if d.videoCodec == media.VideoCodecH265 {
		au = parseHEVCAccessUnit(pes.data)
	} else {
		au = parseAccessUnit(pes.data)
	}
	if len(au.nalus) == 0 {
		return
	}

	pts := ticksToMicros(pes.pts)
	unit := &VideoUnit{
		Codec:    d.videoCodec,
		PTS:      pts,
		DTS:      ticksToMicros(pes.dts),
		Keyframe: au.keyframe,
		Data:     appendAnnexB(make([]byte, 0, annexBSize(au.nalus)), au.nalus),
	}
	if au.vps != nil {
		unit.VPS = append([]byte(nil), au.vps...)
	}
	if au.sps != nil {
		unit.SPS = append([]byte(nil), au.sps...)
	}
	if au.pps != nil {
		unit.PPS = append([]byte(nil), au.pps...)
	}

	for _, sei := range au.sei {
		d.handleCaptionSEI(ctx, sei, pts)
	}

	select {
	case d.videoCh <- unit:
	case <-ctx.Done():
	}
}

func (d *Demuxer) handleAudioPES(ctx context.Context, pkt []byte) {
	pes, err := parsePES(pkt)
	if err != nil {
		d.log.Debug("bad audio PES", "error", err)
		return
	}

	frames, err := splitADTS(pes.data)
	if err != nil {
		d.log.Debug("bad ADTS payload", "error", err)
	}

	pts := ticksToMicros(pes.pts)
	for _, f := range frames {
		unit := &AudioUnit{
			PTS:        pts,
			Data:       append([]byte(nil), f.data...),
			SampleRate: f.sampleRate,
			Channels:   f.channels,
		}
		select {
		case d.audioCh <- unit:
		case <-ctx.Done():
			return
		}
		// Successive frames in one PES advance by one AAC frame duration.
		if f.sampleRate > 0 {
			pts += int64(aacSamplesPerFrame) * 1_000_000 / int64(f.sampleRate)
		}
	}
}

// handleCaptionSEI feeds CC data from an SEI NAL through the CEA-608
// decoders and emits completed caption text.
func (d *Demuxer) handleCaptionSEI(ctx context.Context, sei []byte, pts int64) {
	cd := ccx.ExtractCaptions(sei)
	if cd == nil {
		return
	}

	for _, pair := range cd.CC608Pairs {
		dec := d.cea608[pair.Channel]
		if dec == nil {
			continue
		}
		text := dec.Decode(pair.Data[0], pair.Data[1])
		if text == "" {
			continue
		}
		frame := &ccx.CaptionFrame{PTS: pts, Text: text, Channel: pair.Channel}
		select {
		case d.captionCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// finish drains the partially accumulated PES packets at end of stream.
func (d *Demuxer) finish(ctx context.Context) {
	if pes := d.video.flush(); pes != nil {
		d.handleVideoPES(ctx, pes)
	}
	if pes := d.audio.flush(); pes != nil {
		d.handleAudioPES(ctx, pes)
	}
}
