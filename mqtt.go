package phoenix

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// MQTTBridge republishes every post event to <topic>/posts.
type MQTTBridge struct {
	Mqtt  mqtt.Client
	topic string
	sub   *Subscription
}

// NewMQTTBridge builds a bridge that forwards events from sub. The client is
// not connected until Run.
func NewMQTTBridge(cfg Config, sub *Subscription) *MQTTBridge {
	client := initializeMQTT(mqttOnConnectHandler(), fmt.Sprintf("phoenix-%s", cfg.FeedID), cfg.MQTTHost, cfg.MQTTUser, cfg.MQTTPass)
	return &MQTTBridge{Mqtt: client, topic: cfg.MQTTTopic, sub: sub}
}

// PostsTopic is the topic post events are published on.
func (b *MQTTBridge) PostsTopic() string {
	return b.topic + "/posts"
}

// Run connects to the broker and forwards events until ctx is done or the
// subscription closes.
func (b *MQTTBridge) Run(ctx context.Context) error {
	defer b.sub.Close()
	if token := b.Mqtt.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	defer b.Mqtt.Disconnect(250)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-b.sub.C:
			if !ok {
				return nil
			}
			if err := b.publish(ev); err != nil {
				logrus.WithError(err).WithField("key", ev.Post.Key).Warn("failed to forward post event")
			}
		}
	}
}

func (b *MQTTBridge) publish(ev PostEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	token := b.Mqtt.Publish(b.PostsTopic(), 1, false, payload)
	token.Wait()
	return token.Error()
}

func mqttOnConnectHandler() mqtt.OnConnectHandler {
	return func(client mqtt.Client) {
		logrus.Println("Connected to MQTT")
	}
}

func initializeMQTT(onConnect mqtt.OnConnectHandler, name string, host string, user string, pass string) mqtt.Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(host)
	opts.SetClientID(name)
	opts.SetUsername(user)
	opts.SetPassword(pass)
	opts.OnConnect = onConnect
	opts.OnConnectionLost = connectLostHandler
	client := mqtt.NewClient(opts)
	return client
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	logrus.Printf("MQTT Connection lost: %v", err)
}
