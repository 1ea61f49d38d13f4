package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
	HeaderOwnerID   = "owner_id"
)

// EventMeta is the metadata every outbox message carries in its headers.
type EventMeta struct {
	EventID   string
	EventType string
	OwnerID   string
}

// Headers renders m as Kafka headers, skipping empty values.
func (m EventMeta) Headers() []kafka.Header {
	var out []kafka.Header
	for _, kv := range [][2]string{{HeaderEventID, m.EventID}, {HeaderEventType, m.EventType}, {HeaderOwnerID, m.OwnerID}} {
		if kv[1] != "" {
			out = append(out, kafka.Header{Key: kv[0], Value: []byte(kv[1])})
		}
	}
	return out
}

// ExtractEventMeta reads the headers written by Headers. Messages from older
// producers fall back to the key for the event id and the topic for the type.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	m := EventMeta{
		EventID:   HeaderValue(msg.Headers, HeaderEventID),
		EventType: HeaderValue(msg.Headers, HeaderEventType),
		OwnerID:   HeaderValue(msg.Headers, HeaderOwnerID),
	}
	if m.EventID == "" {
		m.EventID = string(msg.Key)
	}
	if m.EventType == "" {
		m.EventType = msg.Topic
	}
	return m
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
