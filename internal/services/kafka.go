package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// KafkaChecker dials the configured brokers; one reachable broker is enough
type KafkaChecker struct {
	brokers []string
	dialer  *kafka.Dialer
}

// NewKafkaChecker creates a checker for brokers
func NewKafkaChecker(brokers []string) *KafkaChecker {
	return &KafkaChecker{brokers: brokers, dialer: &kafka.Dialer{}}
}

// Type returns "kafka"
func (k *KafkaChecker) Type() string {
	return "kafka"
}

// HealthCheck connects to the first answering broker
func (k *KafkaChecker) HealthCheck(ctx context.Context) error {
	if len(k.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var errs []error
	for _, addr := range k.brokers {
		conn, err := k.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka unreachable: %w", errors.Join(errs...))
}
