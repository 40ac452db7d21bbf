// Package transport provides byte channels to a programmer device.
//
// A transport offers exactly what the bulk load flow control needs:
// writes, a non-blocking count of bytes available to read, exact-size
// blocking reads bounded by a timeout and clearing of pending bytes.
// Closing a transport fails every blocked read with ErrClosed, which is
// the only way to abort an operation in progress.
package transport
