package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/devagent/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when config leaves connect_timeout unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish or
	// subscribe acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when config leaves keepalive unset.
	defaultKeepAlive = 15 * time.Second

	// defaultInboxSize bounds the number of inbound messages queued between polls.
	defaultInboxSize = 32

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Status describes the retained device status topic used for the Last Will
// and for online announcements.
type Status struct {
	// Topic is the retained status topic. Empty disables LWT and announcements.
	Topic string

	// BootID identifies this process run in status payloads.
	BootID string
}

// StatusPayload is the JSON body published on the status topic.
type StatusPayload struct {
	Online    bool   `json:"online"`
	Timestamp int64  `json:"ts"`
	ClientID  string `json:"client_id"`
	BootID    string `json:"boot_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// buildClientOptions creates paho MQTT options for one connection attempt.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID for identification
//   - Authentication credentials (if provided)
//   - Clean session, no automatic reconnect or connect retry
//   - Keepalive and connect timeout
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Subscriptions never survive a drop; the session manager re-subscribes.
	opts.SetCleanSession(true)

	// The session manager owns reconnection.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets the Last Will so the broker marks the device offline
// if the connection drops without a graceful Close.
func configureLWT(opts *pahomqtt.ClientOptions, status Status, clientID string, qos byte) {
	if status.Topic == "" {
		return
	}
	payload, err := json.Marshal(StatusPayload{
		Online:    false,
		Timestamp: time.Now().Unix(),
		ClientID:  clientID,
		BootID:    status.BootID,
		Reason:    "unexpected_disconnect",
	})
	if err != nil {
		return
	}
	opts.SetBinaryWill(status.Topic, payload, qos, true)
}

// statusPayload builds a retained status document.
func statusPayload(online bool, clientID, bootID, reason string) []byte {
	//nolint:errcheck // StatusPayload contains only plain fields
	payload, _ := json.Marshal(StatusPayload{
		Online:    online,
		Timestamp: time.Now().Unix(),
		ClientID:  clientID,
		BootID:    bootID,
		Reason:    reason,
	})
	return payload
}
