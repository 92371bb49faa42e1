package relay

import (
	"fmt"
	"strings"
	"time"

	"alpacarelay/pkg/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// MQTTSwitcher drives relays by publishing retained ON/OFF messages to
// {topic_root}/{relay}/set.
type MQTTSwitcher struct {
	client    mqtt.Client
	topicRoot string
	qos       byte
	logger    log.FieldLogger
}

// createMQTTClient connects to the broker described by cfg.
func createMQTTClient(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.SetClientID(cfg.ClientID)
	opts.AddBroker(cfg.Broker())
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %v", token.Error())
	}
	return client, nil
}

// NewMQTTSwitcher connects to the broker.
func NewMQTTSwitcher(cfg config.MQTTConfig, logger log.FieldLogger) (*MQTTSwitcher, error) {
	client, err := createMQTTClient(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("Connected to MQTT broker %s", cfg.Broker())

	return newMQTTSwitcher(client, cfg.TopicRoot, byte(cfg.QoS), logger), nil
}

func newMQTTSwitcher(client mqtt.Client, topicRoot string, qos byte, logger log.FieldLogger) *MQTTSwitcher {
	return &MQTTSwitcher{
		client:    client,
		topicRoot: topicRoot,
		qos:       qos,
		logger:    logger,
	}
}

func (s *MQTTSwitcher) Switch(relay string, on bool) error {
	topic := relayTopic(s.topicRoot, relay)
	token := s.client.Publish(topic, s.qos, true, onOff(on))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	s.logger.Debugf("Published %s to %s", onOff(on), topic)
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSwitcher) Close() {
	s.logger.Info("Disconnecting from MQTT broker")
	s.client.Disconnect(100)
}

func relayTopic(root, relay string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return relay + "/set"
	}
	return root + "/" + relay + "/set"
}
