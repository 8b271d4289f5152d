package streambuffer

// MetricsHook observes buffer activity. Implementations must be cheap.
type MetricsHook interface {
	ObserveInsert(merged bool, size int)
	ObserveReject()
	ObserveEvict(evicted int, size int)
}

// NoopMetrics is used when no hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveInsert(bool, int) {}
func (NoopMetrics) ObserveReject()          {}
func (NoopMetrics) ObserveEvict(int, int)   {}
