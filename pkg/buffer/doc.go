// Package buffer implements StreamBuffer, a worker's in-memory cache of
// produced results between flushes to the output store, with approximate
// byte accounting used to trigger backpressure against MAX_BUFFER_BYTES.
package buffer
