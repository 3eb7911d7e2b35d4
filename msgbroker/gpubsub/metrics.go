package gpubsub

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metricsCollector interface {
	onPublish(context.Context, string, error)
}

type otelMetricsCollector struct {
	metricPublishedMessages    metric.Int64Counter
	metricPublishMessageErrors metric.Int64Counter
}

func (c *otelMetricsCollector) onPublish(ctx context.Context, topicName string, err error) {
	label := attribute.String("topic", topicName)
	c.metricPublishedMessages.Add(ctx, 1, label)
	if err != nil {
		c.metricPublishMessageErrors.Add(ctx, 1, label)
	}
}

func (p *PubsubMsgBroker) initMetrics(meter metric.MeterMust) {
	p.metrics = &otelMetricsCollector{
		metricPublishedMessages:    meter.NewInt64Counter("gpubsub_published_messages_total"),
		metricPublishMessageErrors: meter.NewInt64Counter("gpubsub_publish_message_errors_total"),
	}
}
