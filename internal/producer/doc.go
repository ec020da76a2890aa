// Package producer runs the synthetic telemetry loop.
//
// On every tick the Producer generates one sample per roster device and
// publishes it twice: to the device's group and to every connection.
// Setting Config.DualDelivery to false keeps only the group publish.
//
//	p, _ := producer.New(hub.NewPublisher(b), producer.Config{
//	    Interval:     time.Second,
//	    Devices:      []string{"alpha", "bravo", "charlie"},
//	    DualDelivery: true,
//	})
//	_ = p.Start(ctx)
//	defer p.Stop()
package producer
