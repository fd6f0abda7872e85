// Package transport carries opaque protocol frames between the
// networking stack and a radio co-processor over a multiplexed link.
//
// Two realizations of one contract coexist. Device runs inside the
// co-processor firmware model: the send path is a single-flight
// deferred tasklet on a cooperative loop, write completion arrives
// asynchronously and only releases the transfer buffer, and the
// receive dispatcher does one non-blocking read per invocation.
// Host runs in the process talking to an external co-processor:
// SendFrame blocks with a bounded wait for writability, WaitForFrame
// blocks with a timeout distinct from failure, and the receive path
// integrates into the caller's descriptor-set poll loop.
//
// Ordering: frames are transmitted FIFO within a priority class,
// priority-first across classes; completion notifications only free
// memory and never reorder.
package transport
