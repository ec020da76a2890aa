// Package mqtt connects netpulse to an MQTT broker.
//
// The broker is an optional side channel next to the realtime hub: samples
// are mirrored out to it, and device status reports come in from it.
//
//	netpulse ──▶ {prefix}/telemetry/{device}   (samples, JSON)
//	netpulse ◀── {prefix}/status/{device}      (status reports)
//	netpulse ──▶ {prefix}/system/status        (retained presence, LWT)
//
// The client reconnects on its own after the first successful connect and
// restores tracked subscriptions when it does. Handlers run on paho's
// goroutines and are wrapped with panic recovery.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllStatus(), 1, func(topic string, payload []byte) error {
//	    id, _ := topics.DeviceFromStatus(topic)
//	    ...
//	})
package mqtt
