package queue

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/loom/media"
)

// Compile-time interface check.
var _ FrameQueue = (*FramedQueue)(nil)

// ErrCapacity is returned when a queue is constructed with fewer than two
// slots. One slot is always kept unused as the sentinel gap that
// distinguishes full from empty, so a capacity of 1 would leave no usable
// slot.
var ErrCapacity = errors.New("queue: capacity must be at least 2")

// FramedQueue is the circular-buffer implementation of FrameQueue. front is
// the next slot to read and rear the next slot to write; front == rear means
// empty and (rear+1) mod max == front means full. Each index is written by
// only one side of the edge, and atomics give the other side a consistent
// view, so no lock is needed.
type FramedQueue struct {
	log    *slog.Logger
	conn   ConnectionData
	frames []media.Frame
	max    uint32

	front atomic.Uint32
	rear  atomic.Uint32

	discards atomic.Int64
}

// New creates a FramedQueue over the given preallocated slab. The slab
// length is the slot count; usable capacity is one less. Typed factories
// (NewVideoQueue, NewAudioQueue) build the slab per codec; tests may pass
// any Frame implementation.
func New(conn ConnectionData, frames []media.Frame) (*FramedQueue, error) {
	if len(frames) < 2 {
		return nil, ErrCapacity
	}
	return &FramedQueue{
		log:    slog.With("component", "queue", "writer", conn.WriterID, "reader", conn.ReaderID),
		conn:   conn,
		frames: frames,
		max:    uint32(len(frames)),
	}, nil
}

// Rear returns the slot the producer may write into, or nil if full.
func (q *FramedQueue) Rear() media.Frame {
	rear := q.rear.Load()
	if (rear+1)%q.max == q.front.Load() {
		return nil
	}
	return q.frames[rear]
}

// Front returns the slot the consumer may read from, or nil if empty.
func (q *FramedQueue) Front() media.Frame {
	front := q.front.Load()
	if q.rear.Load() == front {
		return nil
	}
	return q.frames[front]
}

// Add commits the pending write and returns the reader filter's ID.
func (q *FramedQueue) Add() int {
	q.rear.Store((q.rear.Load() + 1) % q.max)
	return q.conn.ReaderID
}

// Remove commits the pending read and returns the writer filter's ID.
func (q *FramedQueue) Remove() int {
	q.front.Store((q.front.Load() + 1) % q.max)
	return q.conn.WriterID
}

// Flush steps rear backward one slot, discarding the newest committed
// frame. Under sustained backpressure the queue keeps older frames in
// flight and sacrifices freshly produced ones rather than blocking the
// producer. Writer-side operation.
func (q *FramedQueue) Flush() {
	q.rear.Store((q.rear.Load() + q.max - 1) % q.max)
}

// ForceRear returns a writable slot unconditionally, evicting the newest
// queued frame until one frees up. Each eviction is logged and counted.
func (q *FramedQueue) ForceRear() media.Frame {
	for {
		if f := q.Rear(); f != nil {
			return f
		}
		q.discards.Add(1)
		q.log.Debug("frame discarded, queue full")
		q.Flush()
	}
}

// ForceFront returns the slot just before front, bypassing the empty
// check. It lets a consumer re-read the frame it last removed, even after
// the queue reports empty.
func (q *FramedQueue) ForceFront() media.Frame {
	return q.frames[(q.front.Load()+q.max-1)%q.max]
}

// Len is the number of committed, unread frames.
func (q *FramedQueue) Len() int {
	front := q.front.Load()
	rear := q.rear.Load()
	if front > rear {
		return int(q.max - front + rear)
	}
	return int(rear - front)
}

// Cap is the usable capacity: one slot below the slab size.
func (q *FramedQueue) Cap() int { return int(q.max) - 1 }

// Connection returns the edge's endpoint filter IDs.
func (q *FramedQueue) Connection() ConnectionData { return q.conn }

// Discards returns the number of frames evicted by ForceRear.
func (q *FramedQueue) Discards() int64 { return q.discards.Load() }

// Close drops the slab so the frames can be collected. The queue must not
// be used afterwards.
func (q *FramedQueue) Close() {
	q.frames = nil
	q.front.Store(0)
	q.rear.Store(0)
}
