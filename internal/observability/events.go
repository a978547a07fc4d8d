package observability

import "context"

// Publisher is the outbound event sink; satisfied by rabbitmq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

// EventEnvelope wraps every event published to the broker.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

var defaultPublisher Publisher

// SetPublisher installs the process-wide event publisher.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends an event through the installed publisher; a nil
// publisher makes this a no-op so callers never have to guard.
func PublishEvent(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	err := defaultPublisher.PublishJSON(ctx, routingKey, message, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
