// Package async bridges asynchronous host computations across a synchronous
// guest boundary.
//
// A guest cannot suspend, so the host hands it a HostFuture and lets it poll.
// The first Poll starts the computation on its own goroutine; every Poll
// registers the waker of the task currently driving the guest, taken from a
// ContextForwarder, so completion wakes the outer driver instead of making it
// spin:
//
//	fwd := async.NewContextForwarder()
//	sig := async.NewSignal()
//	release := fwd.Forward(async.NewWakeContext(ctx, sig))
//	defer release()
//
//	fut := async.NewHostFuture(func(ctx context.Context) ([]byte, error) {
//	    return storage.ReadState(ctx)
//	})
//	for {
//	    if p := fut.Poll(fwd); !p.IsPending() {
//	        return p.Value, p.Err
//	    }
//	    if err := sig.Wait(ctx); err != nil {
//	        return nil, err
//	    }
//	}
//
// Polling a future again after it reported ready returns the cached outcome.
// Conforming callers do not rely on this.
package async
