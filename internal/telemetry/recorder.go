package telemetry

import (
	"context"
	"errors"
	"time"
)

// Recorder receives every sample the producer emits, in addition to the
// realtime broadcast. Implementations persist or mirror samples elsewhere.
type Recorder interface {
	Record(ctx context.Context, s Sample) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, s Sample) error

// Record calls f(ctx, s).
func (f RecorderFunc) Record(ctx context.Context, s Sample) error {
	return f(ctx, s)
}

// MultiRecorder fans a sample out to several recorders.
// Every recorder is called even if an earlier one fails.
type MultiRecorder []Recorder

// Record calls each recorder and joins their errors.
func (m MultiRecorder) Record(ctx context.Context, s Sample) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SeriesWriter is the write side of a time-series store, such as
// *influxdb.Client.
type SeriesWriter interface {
	WriteTelemetry(deviceID string, cpu, mem float64, at time.Time)
}

// SeriesRecorder mirrors samples into a time-series store.
type SeriesRecorder struct {
	w SeriesWriter
}

// NewSeriesRecorder wraps w as a Recorder.
func NewSeriesRecorder(w SeriesWriter) *SeriesRecorder {
	return &SeriesRecorder{w: w}
}

// Record queues s for writing. Writes are asynchronous, so Record only
// fails for invalid samples.
func (r *SeriesRecorder) Record(_ context.Context, s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.w.WriteTelemetry(s.DeviceID, s.CPU, s.Mem, s.At)
	return nil
}
