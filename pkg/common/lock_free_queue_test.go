package common

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAtomicQueueNonParallel(t *testing.T) {
	queue := NewLockFreeQueue[int]()

	queue.Enqueue(1)
	queue.Enqueue(2)
	queue.Enqueue(3)
	queue.Enqueue(4)
	queue.Enqueue(5)

	if queue.Length() != 5 {
		t.Errorf("queue length should be 5")
	}

	sum := 0
	order := make([]int, 0, 5)
	for {
		val, ok := queue.Dequeue()
		if !ok {
			break
		}

		sum += val
		order = append(order, val)
	}

	if queue.Length() != 0 {
		t.Errorf("queue length should be 0")
	}
	if sum != 15 {
		t.Errorf("sum should be equal 15")
	}
	for i, v := range order {
		if v != i+1 {
			t.Errorf("queue is not FIFO - got %v", order)
			break
		}
	}
}

func TestAtomicQueueEmptyDequeue(t *testing.T) {
	queue := NewLockFreeQueue[string]()

	val, ok := queue.Dequeue()
	if ok || val != "" {
		t.Errorf("dequeue on an empty queue should fail")
	}
}

func TestAtomicQueueParallel(t *testing.T) {
	queue := NewLockFreeQueue[int]()

	values := 100_000

	wg := sync.WaitGroup{}
	wg.Add(values)
	for i := 0; i < values; i++ {
		go func(idx int) {
			defer wg.Done()

			queue.Enqueue(idx)
		}(i)
	}
	wg.Wait()

	if queue.Length() != values {
		t.Errorf("queue length should be %d", values)
	}

	sum := int64(0)

	consumers := 64
	wg.Add(consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			defer wg.Done()

			for {
				val, ok := queue.Dequeue()
				if !ok {
					return
				}

				atomic.AddInt64(&sum, int64(val))
			}
		}()
	}
	wg.Wait()

	if queue.Length() != 0 {
		t.Errorf("queue length should be 0")
	}
	if int(sum) != values*(values-1)/2 {
		t.Errorf("sum should be equal %d, but got %d", values*(values-1)/2, sum)
	}
}
