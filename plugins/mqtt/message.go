package mqtt

import paho "github.com/eclipse/paho.mqtt.golang"

// message adapts a paho.mqtt.golang message to core.Message.
type message struct {
	m paho.Message
}

func (m message) Topic() string   { return m.m.Topic() }
func (m message) Payload() []byte { return m.m.Payload() }
func (m message) QoS() byte       { return m.m.Qos() }
func (m message) Retained() bool  { return m.m.Retained() }
