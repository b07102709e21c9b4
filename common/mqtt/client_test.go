package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	"openelis-alert/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Error() error                   { return t.err }

func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type subscribeCall struct {
	topic    string
	qos      byte
	callback mqtt.MessageHandler
}

// fakeBroker 只实现 Subscribe，其余方法不会被调用
type fakeBroker struct {
	mqtt.Client

	mu       sync.Mutex
	calls    []subscribeCall
	failWith error
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWith != nil {
		return fakeToken{err: b.failWith}
	}
	b.calls = append(b.calls, subscribeCall{topic: topic, qos: qos, callback: callback})
	return fakeToken{}
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func setupClient(broker *fakeBroker) *Client {
	return &Client{
		client:        broker,
		config:        &config.MQTTConfig{Broker: "tcp://broker:1883"},
		logger:        zap.NewNop(),
		subscriptions: make(map[string]subscription),
	}
}

func TestClient_ReconnectRestoresSubscriptions(t *testing.T) {
	broker := &fakeBroker{}
	c := setupClient(broker)

	var got []string
	require.NoError(t, c.Subscribe("coldstorage/+/readings", 1, func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	}))
	require.Len(t, broker.calls, 1)

	// 模拟自动重连
	c.onConnect(broker)

	require.Len(t, broker.calls, 2)
	restored := broker.calls[1]
	assert.Equal(t, "coldstorage/+/readings", restored.topic)
	assert.Equal(t, byte(1), restored.qos)

	// 重新订阅后消息仍交给原 handler
	restored.callback(broker, fakeMessage{topic: "coldstorage/5/readings", payload: []byte(`{"t":-80}`)})
	assert.Equal(t, []string{`coldstorage/5/readings={"t":-80}`}, got)
}

func TestClient_InitialConnectWithoutSubscriptions(t *testing.T) {
	broker := &fakeBroker{}
	c := setupClient(broker)

	c.onConnect(broker)
	assert.Empty(t, broker.calls)
}

func TestClient_FailedSubscribeNotRestored(t *testing.T) {
	broker := &fakeBroker{failWith: errors.New("not authorized")}
	c := setupClient(broker)

	err := c.Subscribe("coldstorage/+/readings", 1, func(string, []byte) error { return nil })
	assert.ErrorContains(t, err, "failed to subscribe to topic coldstorage/+/readings")

	broker.failWith = nil
	c.onConnect(broker)
	assert.Empty(t, broker.calls)
}

func TestClient_HandlerErrorIsLogged(t *testing.T) {
	broker := &fakeBroker{}
	c := setupClient(broker)

	calls := 0
	require.NoError(t, c.Subscribe("t", 0, func(string, []byte) error {
		calls++
		return errors.New("bad payload")
	}))

	broker.calls[0].callback(broker, fakeMessage{topic: "t"})
	assert.Equal(t, 1, calls)
}
