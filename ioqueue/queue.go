// Package ioqueue provides a serial executor for store operations.
//
// A Queue runs submitted functions one at a time on a single worker goroutine.
// Sharing one Queue between every store that touches a physical drive serializes
// all I/O to that drive without a process-wide lock:
//
//	q := ioqueue.New()
//	defer q.Close()
//
//	err := q.Run(ctx, func() error {
//		return store.WriteRecord(i, payload)
//	})
//
// The context is checked before a function starts. A function that has started
// always runs to completion.
package ioqueue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("ioqueue: queue closed")

type job struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// Queue is a serial executor. The zero value is not usable; call New.
type Queue struct {
	jobs   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// New starts a queue with its worker goroutine.
func New() *Queue {
	q := &Queue{
		jobs:   make(chan job),
		stopCh: make(chan struct{}),
	}

	q.wg.Add(1)
	go q.loop()

	return q
}

func (q *Queue) loop() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case j := <-q.jobs:
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- j.fn()
		}
	}
}

// Run submits fn and waits for its result. It returns ctx.Err() if the context
// ends before fn is started, and ErrClosed after Close.
func (q *Queue) Run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopCh:
		return ErrClosed
	case q.jobs <- j:
	}

	// once accepted the job is always answered
	return <-j.done
}

// Close stops the worker after the running job, if any, returns.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.stopCh)
	})
	q.wg.Wait()
}
