// Package monitor publishes transport frame events to MQTT so link
// traffic can be inspected live, and feeds injected frames back into
// the transport.
package monitor

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Topic suffixes under the configured prefix.
const (
	TopicRx     = "rx"     // frames received from the co-processor
	TopicTx     = "tx"     // frames sent to the co-processor
	TopicInject = "inject" // frames to inject into the send path
)

// FrameFunc handles an injected frame.
type FrameFunc func(frame []byte)

// Monitor wraps an MQTT client scoped to one topic prefix.
type Monitor struct {
	Client      paho.Client
	TopicPrefix string
}

// ClientOptionsFromURL creates paho ClientOptions from a broker URL
// of the form mqtt://host:port/prefix/. A missing client-id query
// parameter defaults to one derived from the machine id.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	clientID := u.Query().Get("client-id")
	if clientID == "" {
		if id, err := machineid.ID(); err == nil {
			clientID = "cpcmon-" + id
		}
	}
	if clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, topicPrefix, nil
}

// New creates a Monitor from a broker URL.
func New(brokerURL string) (*Monitor, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		Client:      paho.NewClient(opts),
		TopicPrefix: topicPrefix,
	}, nil
}

// Connect connects to the broker.
func (m *Monitor) Connect() error {
	token := m.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (m *Monitor) Close() error {
	m.Client.Disconnect(0)
	return nil
}

// PublishRx publishes a frame received from the co-processor.
func (m *Monitor) PublishRx(frame []byte) {
	m.publish(TopicRx, frame)
}

// PublishTx publishes a frame sent to the co-processor.
func (m *Monitor) PublishTx(frame []byte) {
	m.publish(TopicTx, frame)
}

// SubscribeInject subscribes to frames to be injected into the send
// path. Payloads are raw frame bytes.
func (m *Monitor) SubscribeInject(fn FrameFunc) error {
	topic := m.TopicPrefix + TopicInject
	token := m.Client.Subscribe(topic, 0, func(client paho.Client, msg paho.Message) {
		fn(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (m *Monitor) publish(suffix string, frame []byte) {
	topic := m.TopicPrefix + suffix
	if glog.V(2) {
		glog.Infof("%s: %s", topic, hex.EncodeToString(frame))
	}
	if token := m.Client.Publish(topic, 0, false, frame); token.Wait() && token.Error() != nil {
		glog.Errorf("publish %s: %v", topic, token.Error())
	}
}
