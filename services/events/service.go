package events

import (
	"github.com/customeros/sitestack/interfaces"
	"github.com/customeros/sitestack/internal/logger"
)

type EventsService struct {
	Publisher interfaces.DomainEventPublisher
}

// NewEventsService connects to RabbitMQ when a URL is configured and falls
// back to a no-op publisher otherwise.
func NewEventsService(rabbitmqURL string, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	if rabbitmqURL == "" {
		log.Warn("RABBITMQ_URL not set, domain notifications are disabled")
		return &EventsService{Publisher: NewNoopPublisher(log)}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	return &EventsService{
		Publisher: publisher,
	}, nil
}

func (s *EventsService) Close() error {
	if s.Publisher == nil {
		return nil
	}
	return s.Publisher.Close()
}
