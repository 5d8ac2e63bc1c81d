// Package mqtt publishes runner availability and session outcomes to an
// MQTT broker using github.com/eclipse/paho.mqtt.golang.
//
// The runner only publishes; it never subscribes to commands. Availability is
// a retained message on <prefix>/runner/status, backed by a Last Will so
// subscribers see "offline" when the runner exits uncleanly.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().Session("completed"), outcome, false)
package mqtt
