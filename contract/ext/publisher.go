package ext

import "context"

// Topical is implemented by events that know their broker topic.
type Topical interface{ Topic() string }

// PublishOptions controls outbound event publishing.
type PublishOptions struct {
	TopicOverride string
	Key           string
	Headers       map[string]string
}

// EventPublisher abstracts forwarding a fired event to a broker.
// Adapters map it to Kafka/NATS/RabbitMQ or keep it in memory.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, evt any, opts PublishOptions) error
}

// Subject returns TopicOverride when set and topic otherwise.
func (o PublishOptions) Subject(topic string) string {
	if o.TopicOverride != "" {
		return o.TopicOverride
	}

	return topic
}

// OutboundHeaders returns a copy of Headers with Key added under "key".
// The caller's map is never mutated.
func (o PublishOptions) OutboundHeaders() map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	for k, v := range o.Headers {
		h[k] = v
	}

	if o.Key != "" {
		h["key"] = o.Key
	}

	return h
}
