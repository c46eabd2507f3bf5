// Package perfmonitor provides a small stopwatch used to time handler
// invocations on the dispatch path.
package perfmonitor

import "time"

// PerformanceMonitor measures the wall time between Start and Stop. It is
// not safe for concurrent use; create one per measured call.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor returns a stopped monitor with no measurement.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// StartNew returns a monitor that is already running.
func StartNew() *PerformanceMonitor {
	pm := NewPerformanceMonitor()
	pm.Start()
	return pm
}

// Start records the start of a measurement, discarding any previous end
// time.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = time.Now()
	pm.endTime = time.Time{}
}

// Stop records the end of the measurement. It does nothing if Start was not
// called; calling it again moves the end time forward.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears the measurement.
func (pm *PerformanceMonitor) Reset() {
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the measured duration, or 0 unless both Start and Stop
// were called.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
