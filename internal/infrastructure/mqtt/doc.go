// Package mqtt adapts paho.mqtt.golang to the broker transport the agent's
// session manager drives.
//
// This package manages:
//   - Opening a broker connection under a caller-chosen client ID
//   - Subscribing and publishing with QoS validation and payload limits
//   - Queueing inbound messages until the owner calls Poll
//   - Last Will and Testament on the device status topic
//   - Broker return codes for failed connects (LastErrorCode)
//
// # Reconnection
//
// paho's own auto-reconnect is disabled. The session manager notices a lost
// connection on its next tick and reconnects explicitly, re-subscribing every
// time because sessions are opened clean.
//
// # Inbound ordering
//
// paho invokes message callbacks on its own goroutine. The callback only
// copies the message into a bounded inbox; Poll drains the inbox and runs the
// inbound handler on the caller's goroutine, so commands are handled strictly
// between scheduler steps and never concurrently with telemetry.
//
// # Topics
//
//	<namespace>/devices/<device_uid>/commands   (subscribe, QoS 1)
//	<namespace>/devices/<device_uid>/telemetry  (publish)
//	<namespace>/devices/<device_uid>/status     (retained, LWT)
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, mqtt.Status{Topic: topics.Status(), BootID: bootID})
//	client.SetInboundHandler(dispatcher.HandleInbound)
//	if err := client.Connect(ctx, "esp32-dev-esp32-01"); err != nil {
//	    log.Printf("connect failed, rc=%d", client.LastErrorCode())
//	}
//	client.Subscribe(topics.Commands(), 1)
//	for {
//	    client.Poll()
//	}
package mqtt
