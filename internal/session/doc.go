// Package session implements the subscriber side of the realtime hub.
//
// A Session dials the hub's websocket endpoint, invokes JoinDeviceGroup
// for its group and keeps the most recent samples it receives in a
// bounded, newest-first Buffer. Notifications go to a callback or, when
// none is registered, to the logger.
//
// # Lifecycle
//
//	Disconnected ──Start──▶ Connecting ──▶ Connected
//	                                         │ transport lost
//	                                         ▼
//	                  Disconnected ◀── Reconnecting ──▶ Connected (group rejoined)
//	                  (retries exhausted)
//
// Reconnect attempts follow Options.RetryDelays (0s, 2s, 10s, 30s by
// default). Subscriptions do not survive a new transport, so the session
// re-invokes JoinDeviceGroup for its last group before it reports
// Connected again.
//
// # Usage
//
//	s, _ := session.New(session.Options{URL: "ws://localhost:5000/hubs/network"})
//	s.OnSample(func(smp telemetry.Sample) { fmt.Println(smp.DeviceID, smp.CPU) })
//	if err := s.Start(ctx, "alpha"); err != nil {
//	    return err
//	}
//	defer s.Stop()
package session
