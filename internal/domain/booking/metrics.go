package booking

import (
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	created   metric.Int64Counter
	cancelled metric.Int64Counter
	refunded  metric.Float64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	created, err := meter.Int64Counter("booking.created",
		metric.WithDescription("Bookings created at checkout"))
	if err != nil {
		return nil, err
	}
	cancelled, err := meter.Int64Counter("booking.cancelled",
		metric.WithDescription("Bookings cancelled"))
	if err != nil {
		return nil, err
	}
	refunded, err := meter.Float64Counter("booking.refunded",
		metric.WithDescription("Refundable amount of cancelled bookings"),
		metric.WithUnit("{currency}"))
	if err != nil {
		return nil, err
	}
	return &metrics{created: created, cancelled: cancelled, refunded: refunded}, nil
}
