package eventing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// NewBrokerConn dials the MQTT broker, retrying the initial connect with
// exponential backoff. The session is persistent so the broker keeps
// per-client in-flight state across reconnects; the connection is torn
// down when ctx is cancelled.
func NewBrokerConn(ctx context.Context, cfg BrokerConfig, logger *log.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = log.Default()
	}

	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialBackoff
	bo.MaxElapsedTime = 30 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Printf("broker connect failed: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	logger.Printf("connected to broker at %s", addr)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		logger.Printf("broker connection closed")
	}()

	return client, nil
}
