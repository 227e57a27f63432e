/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package tcpserver

import (
	"context"
)

// WorkerPool runs tasks on at most Size goroutines at once. It never queues:
// TrySubmit either starts the task immediately or refuses it.
type WorkerPool struct {
	slots chan struct{}
}

// NewWorkerPool creates a new WorkerPool. Size below 1 is treated as 1.
func NewWorkerPool(size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{slots: make(chan struct{}, size)}
}

// TrySubmit starts task in a new goroutine if a slot is free. It does not block.
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.slots <- struct{}{}:
	default:
		return false
	}
	go func() {
		defer func() { <-p.slots }()
		task()
	}()
	return true
}

// Size returns the maximum number of concurrently running tasks.
func (p *WorkerPool) Size() int {
	return cap(p.slots)
}

// Busy returns the number of running tasks.
func (p *WorkerPool) Busy() int {
	return len(p.slots)
}

// Wait blocks until all submitted tasks finish or ctx is done.
// It takes every slot in turn, so TrySubmit refuses tasks while Wait is in progress.
// All slots taken by Wait are released before it returns.
func (p *WorkerPool) Wait(ctx context.Context) error {
	taken := 0
	defer func() {
		for ; taken > 0; taken-- {
			<-p.slots
		}
	}()
	for taken < cap(p.slots) {
		select {
		case p.slots <- struct{}{}:
			taken++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
