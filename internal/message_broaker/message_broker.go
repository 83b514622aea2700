package message_broaker

import "context"

// MessageBroker carries commands from the scheduler to the container runtime.
type MessageBroker interface {
	Publish(ctx context.Context, routingKey string, message []byte) error
	Close() error
}
