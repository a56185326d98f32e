// Package queue implements the fixed-capacity frame queues that connect
// filter stages. Each queue is one directed edge between exactly one
// producer filter and one consumer filter; its slab of frames is allocated
// once at construction and reused in place, so steady-state operation never
// allocates.
package queue

import "github.com/zsiec/loom/media"

// ConnectionData identifies one directed edge by the filter IDs at its two
// endpoints. It is immutable for the lifetime of the edge and is used only
// for wake-up signaling, never for addressing frame contents.
type ConnectionData struct {
	WriterID int
	ReaderID int
}

// FrameQueue is the capability contract for a single producer→consumer
// edge. The writer-side operations (Rear, Add, Flush, ForceRear) must only
// ever be called from one goroutine, and the reader-side operations (Front,
// Remove, ForceFront) from one goroutine; this single-producer/
// single-consumer restriction is what lets implementations avoid locking.
// No operation blocks: a full or empty queue is signaled by a nil frame.
type FrameQueue interface {
	// Rear returns the slot the producer may write into, or nil if the
	// queue is full. Idempotent peek; Add commits the write.
	Rear() media.Frame
	// Front returns the slot the consumer may read from, or nil if the
	// queue is empty. Idempotent peek; Remove commits the read.
	Front() media.Frame
	// Add commits the pending write and returns the reader filter's ID so
	// the caller's scheduler can wake that consumer.
	Add() int
	// Remove commits the pending read and returns the writer filter's ID,
	// the backpressure-release signal for the producer.
	Remove() int
	// Flush discards the most recently committed but unread frame, making
	// room for a new write at the cost of the newest queued frame.
	Flush()
	// ForceRear obtains a writable slot unconditionally, evicting the
	// newest queued frames until one frees up. For producers that must
	// never block, such as a live capture source.
	ForceRear() media.Frame
	// ForceFront returns the slot just before the read position, bypassing
	// the empty check, so a consumer can re-read its last removed frame.
	ForceFront() media.Frame
	// Len is the number of committed, unread frames.
	Len() int
	// Cap is the usable capacity (one slot below the slab size is kept as
	// a sentinel gap).
	Cap() int
	Connection() ConnectionData
	// Close releases the slab. No operation may be called after Close.
	Close()
}
