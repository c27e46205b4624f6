package main

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig describes an optional telemetry broker (spec.md 9's
// accelerated-testing concession has no MQTT analog; this is pure
// observability, see SPEC_FULL.md 3.1).
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
	TLS      MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig carries optional client-certificate TLS settings.
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// TelemetryEvent is one JSON envelope published on a state transition
// or heartbeat.
type TelemetryEvent struct {
	Timestamp int64       `json:"timestamp"`
	SessionID string      `json:"session_id"`
	Tag       string      `json:"tag"`
	Payload   interface{} `json:"payload"`
}

// TelemetryPublisher broadcasts engine lifecycle events over MQTT. It
// is optional: the TCP protocol in spec.md 4 works identically whether
// or not a broker is configured (SPEC_FULL.md 3.1).
type TelemetryPublisher struct {
	client mqtt.Client
	topic  string
	config MQTTConfig
}

// generateClientID creates a random client ID for the MQTT connection.
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "kreios_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files.
func loadTLSConfig(cfg MQTTTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	tlsCfg := &tls.Config{}

	if cfg.CACert != "" {
		caCert, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	return tlsCfg, nil
}

// NewTelemetryPublisher connects to cfg.Broker and returns a publisher
// for topic "kreios/<instance>/state". Returns nil, nil when cfg.Broker
// is empty (telemetry disabled).
func NewTelemetryPublisher(cfg MQTTConfig, instance string) (*TelemetryPublisher, error) {
	if cfg.Broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if cfg.TLS.Enabled {
		tlsCfg, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("telemetry TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("telemetry: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("telemetry: connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("telemetry: reconnecting...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to telemetry broker: %w", token.Error())
	}
	log.Printf("telemetry: connected to %s", cfg.Broker)

	return &TelemetryPublisher{
		client: client,
		topic:  fmt.Sprintf("kreios/%s/state", instance),
		config: cfg,
	}, nil
}

// PublishStateTransition publishes one engine state change.
func (p *TelemetryPublisher) PublishStateTransition(sessionID, from, to string) {
	p.publish("state_transition", sessionID, map[string]string{"from": from, "to": to})
}

// PublishHeartbeat publishes a periodic liveness event carrying the
// current engine status.
func (p *TelemetryPublisher) PublishHeartbeat(sessionID string, status EngineStatus) {
	p.publish("heartbeat", sessionID, map[string]interface{}{
		"state":            status.State.String(),
		"acquired_samples": status.AcquiredSamples,
		"elapsed_seconds":  status.ElapsedSeconds,
	})
}

func (p *TelemetryPublisher) publish(tag, sessionID string, payload interface{}) {
	if p == nil || p.client == nil || !p.client.IsConnected() {
		return
	}
	event := TelemetryEvent{
		Timestamp: time.Now().Unix(),
		SessionID: sessionID,
		Tag:       tag,
		Payload:   payload,
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("telemetry: marshal event %s: %v", tag, err)
		return
	}
	token := p.client.Publish(p.topic, p.config.QoS, p.config.Retain, data)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("telemetry: publish to %s: %v", p.topic, token.Error())
		}
	}()
}

// Disconnect gracefully disconnects from the broker.
func (p *TelemetryPublisher) Disconnect() {
	if p != nil && p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("telemetry: disconnected from broker")
	}
}
