// Package hub is the server-side fan-out core: a group registry, a
// broadcaster that owns per-connection outbound queues, and a publisher
// that turns telemetry events into wire frames.
//
// # Architecture
//
//	producer / API ──▶ Publisher ──▶ Broadcaster ──▶ conn queue ──▶ drain goroutine ──▶ Sink
//	                                     │
//	                                     └── Registry (group ⇄ connection)
//
// Broadcasts take a snapshot of the target set under a read lock, release
// it, then enqueue without blocking. A full or closing queue drops the
// frame for that recipient only and is counted in Stats.Dropped.
//
// # Usage
//
//	b := hub.New(hub.Options{Logger: logger})
//	defer b.Close()
//
//	id, _ := b.Connect(sink)
//	_ = b.JoinGroup(id, telemetry.DeviceGroup("alpha"))
//	hub.NewPublisher(b).SampleToDevice(sample)
//	b.Disconnect(id)
package hub
