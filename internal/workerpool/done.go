// Package workerpool provides a bounded, generic fan-out pool used by the
// dispatcher for shared routes, and a periodic Ticker used by the rate
// limiter's fallback sweep.
package workerpool

import "sync"

// Done is closed once the work it represents has finished.
type Done chan struct{}

// DoneFunc starts an asynchronous stop and returns a channel closed on completion.
type DoneFunc func() Done

func fromWaitGroup(wg *sync.WaitGroup) Done {
	ret := make(Done)
	go func() {
		wg.Wait()
		close(ret)
	}()
	return ret
}

// Combine returns a Done that closes once both inputs have closed.
func Combine(first, second Done) Done {
	ret := make(Done)
	go func() {
		<-first
		<-second
		close(ret)
	}()
	return ret
}
