package buffer

// Policy decides, after a buffer mutation, whether an automatic flush
// should be scheduled. It is a pure predicate: evaluating it never mutates
// the buffer, and the actual flush is dispatched asynchronously by the
// caller so the append path never blocks.
type Policy interface {
	ShouldFlush(st Status) bool
}

// ThresholdPolicy fires when auto-processing is enabled and occupancy has
// reached the configured threshold.
type ThresholdPolicy struct{}

// ShouldFlush implements Policy.
func (ThresholdPolicy) ShouldFlush(st Status) bool {
	return st.AutoProcess && st.Size >= st.Threshold
}
