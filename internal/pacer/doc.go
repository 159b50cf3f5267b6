// Package pacer decides when the next request to the remote service may be
// sent.
//
// An [Advisor] turns the service's status signal into a pause in seconds.
// [StatusAdvisor] reads the Overpass /status page; [Fixed] ignores it.
//
// A [Pacer] is the shared resource all workers go through before each
// request. [Gate] serializes callers in one process with a mutex-guarded
// clock. [RedisGate] adds a slot claim in redis so several processes against
// the same endpoint stay within its capacity.
//
// # Usage
//
//	advisor := pacer.NewStatusAdvisor(client, pacer.DefaultPause, log)
//	gate := pacer.NewGate(advisor, time.Second)
//	if err := gate.Wait(ctx); err != nil {
//	    return err // ctx done
//	}
package pacer
