package jsoneval

// Options configures an evaluator session.
type Options struct {
	// EnableTracking records per-session usage metrics.
	EnableTracking bool
	// SafeNaNHandling collapses non-finite arithmetic results to 0 instead
	// of null.
	SafeNaNHandling bool
	// RecursionLimit caps expression evaluation depth.
	RecursionLimit int
	// TimezoneOffsetMinutes shifts today()/now() from UTC when set.
	TimezoneOffsetMinutes *int
	// Parallel enables multi-goroutine execution inside batches and array
	// operators.
	Parallel bool
	// CacheEnabled toggles evaluation memoization.
	CacheEnabled bool
}

// DefaultOptions returns the default preset: tracking on, unsafe NaN,
// recursion limit 1000, cache on.
func DefaultOptions() *Options {
	return &Options{
		EnableTracking: true,
		RecursionLimit: 1000,
		CacheEnabled:   true,
	}
}

// PerformanceOptions returns the performance preset: tracking off.
func PerformanceOptions() *Options {
	o := DefaultOptions()
	o.EnableTracking = false
	return o
}

// SafeOptions returns the safe preset: tracking on, safe NaN handling.
func SafeOptions() *Options {
	o := DefaultOptions()
	o.SafeNaNHandling = true
	return o
}

// MinimalOptions returns the minimal preset: tracking off, cache off.
func MinimalOptions() *Options {
	o := DefaultOptions()
	o.EnableTracking = false
	o.CacheEnabled = false
	return o
}

// SetTimezoneOffset sets the today()/now() shift in minutes.
func (o *Options) SetTimezoneOffset(minutes int) *Options {
	o.TimezoneOffsetMinutes = &minutes
	return o
}

// SetParallel toggles batch and array-operator parallelism.
func (o *Options) SetParallel(parallel bool) *Options {
	o.Parallel = parallel
	return o
}

// SetRecursionLimit caps expression evaluation depth.
func (o *Options) SetRecursionLimit(limit int) *Options {
	o.RecursionLimit = limit
	return o
}

// SetCacheEnabled toggles evaluation memoization.
func (o *Options) SetCacheEnabled(enabled bool) *Options {
	o.CacheEnabled = enabled
	return o
}
