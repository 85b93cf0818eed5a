package vm

// Event is one emitted log entry: an opaque topic plus an ABI-encoded
// argument tuple. Event order within a result is the exact program order of
// the emitting extern calls; it is consensus-relevant output and is never
// reordered.
type Event struct {
	Topic []byte
	Data  []byte
}
