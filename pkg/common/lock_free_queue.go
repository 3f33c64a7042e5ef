package common

import (
	"sync/atomic"
	"unsafe"
)

// LockFreeQueue reference implementation from The Art of Multiprocessor Programming pg. 236
type LockFreeQueue[T any] struct {
	head unsafe.Pointer
	tail unsafe.Pointer

	length int32
}

type lfqElement[T any] struct {
	value T
	next  unsafe.Pointer
}

func NewLockFreeQueue[T any]() *LockFreeQueue[T] {
	queue := &LockFreeQueue[T]{}
	item := &lfqElement[T]{}

	queue.head = unsafe.Pointer(item)
	queue.tail = unsafe.Pointer(item)

	return queue
}

func (lfq *LockFreeQueue[T]) Enqueue(item T) {
	node := &lfqElement[T]{
		value: item,
		next:  nil,
	}

	for {
		last := (*lfqElement[T])(atomic.LoadPointer(&lfq.tail))
		next := atomic.LoadPointer(&last.next)

		if last == (*lfqElement[T])(atomic.LoadPointer(&lfq.tail)) {
			if next == nil {
				if atomic.CompareAndSwapPointer(&last.next, next, unsafe.Pointer(node)) {
					atomic.CompareAndSwapPointer(&lfq.tail, unsafe.Pointer(last), unsafe.Pointer(node))
					break
				}
			} else {
				atomic.CompareAndSwapPointer(&lfq.tail, unsafe.Pointer(last), next)
			}
		}
	}

	atomic.AddInt32(&lfq.length, 1)
}

// Dequeue removes the oldest element. The second return value is false when the queue is empty.
func (lfq *LockFreeQueue[T]) Dequeue() (T, bool) {
	var empty T

	for {
		first := (*lfqElement[T])(atomic.LoadPointer(&lfq.head))
		last := (*lfqElement[T])(atomic.LoadPointer(&lfq.tail))
		next := atomic.LoadPointer(&first.next)

		if first != (*lfqElement[T])(atomic.LoadPointer(&lfq.head)) {
			continue
		}

		if first == last {
			if next == nil {
				return empty, false
			}
			// tail is lagging behind
			atomic.CompareAndSwapPointer(&lfq.tail, unsafe.Pointer(last), next)
		} else {
			value := (*lfqElement[T])(next).value
			if atomic.CompareAndSwapPointer(&lfq.head, unsafe.Pointer(first), next) {
				atomic.AddInt32(&lfq.length, -1)
				return value, true
			}
		}
	}
}

func (lfq *LockFreeQueue[T]) Length() int {
	return int(atomic.LoadInt32(&lfq.length))
}
