package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/yourorg/photo-gallery/pkg/logging"
)

const eventContentType = "application/json"

// messageSender is the part of *azservicebus.Sender used by the publisher.
type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusPublisher sends upload events to an Azure Service Bus queue or topic.
// The client and sender are created once and reused for every event.
type ServiceBusPublisher struct {
	client *azservicebus.Client
	sender messageSender
	queue  string
	logger logging.Logger
}

// NewServiceBusPublisher connects to the namespace in connectionString and opens a sender
// for queue.
func NewServiceBusPublisher(connectionString, queue string, logger logging.Logger) (*ServiceBusPublisher, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(queue, nil)
	if err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("failed to create sender: %w", err)
	}

	p := newServiceBusPublisher(sender, queue, logger)
	p.client = client
	return p, nil
}

func newServiceBusPublisher(sender messageSender, queue string, logger logging.Logger) *ServiceBusPublisher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ServiceBusPublisher{sender: sender, queue: queue, logger: logger}
}

// PublishUploaded sends event as a JSON message whose ID is the event ID.
func (p *ServiceBusPublisher) PublishUploaded(ctx context.Context, event UploadedEvent) error {
	logger := p.logger.With(
		logging.NewField("operation", "servicebus.send"),
		logging.NewField("queue", p.queue),
		logging.NewField("event_id", event.EventID),
	)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	contentType := eventContentType
	messageID := event.EventID
	subject := event.Type
	msg := &azservicebus.Message{
		Body:        body,
		ContentType: &contentType,
		MessageID:   &messageID,
		Subject:     &subject,
		ApplicationProperties: map[string]any{
			"event_type": event.Type,
			"container":  event.Container,
		},
	}

	if event.TraceID != "" {
		msg.ApplicationProperties["trace_id"] = event.TraceID
	}

	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		logger.Error("Failed to send message", logging.NewField("error", err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	logger.Debug("Message sent successfully")
	return nil
}

// Close releases the sender and the client.
func (p *ServiceBusPublisher) Close(ctx context.Context) error {
	err := p.sender.Close(ctx)
	if p.client != nil {
		if cerr := p.client.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
