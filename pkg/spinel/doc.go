// Package spinel provides the frame buffers shared between the
// protocol layer and the co-processor link transport.
//
// The transport treats frames as opaque byte sequences. The outbound
// Buffer is owned by the protocol layer and referenced by the
// transport, which consumes frames strictly FIFO within a priority
// class, higher class first. The RxFrameBuffer holds inbound bytes
// between the link read and the receive callback.
package spinel
