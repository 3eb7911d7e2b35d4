package metrics

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
)

// Prefix is prepended to every bidderd metric name.
const Prefix = "bidderd"

// Meter is the bidderd meter.
var Meter = metric.Must(global.Meter(Prefix))
