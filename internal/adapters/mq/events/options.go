package events

import (
	"time"

	"github.com/okian/appraisal/pkg/logger"
)

const defaultPublishTimeout = 5 * time.Second

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithPublishTimeout bounds a single publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(p *KafkaPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *KafkaPublisher) {
		if l != nil {
			p.logger = l
		}
	}
}
