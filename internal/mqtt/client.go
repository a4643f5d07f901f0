// Package mqtt connects the shade controllers to an MQTT broker: inbound
// commands and sensor values become events, outbound decisions become
// level and state publications.
package mqtt

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewClient connects to the broker.
func NewClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}
