package notify

import (
	logging "github.com/textileio/go-log/v2"
)

// GenericRetryMessage is shown when a failure carries no message of its own.
const GenericRetryMessage = "Please try again."

// Notification is a user-facing alert record.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Show    bool   `json:"show"`
}

// Sink accepts notifications.
type Sink interface {
	Notify(Notification)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Notification)

// Notify calls f(n).
func (f SinkFunc) Notify(n Notification) {
	f(n)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	log *logging.ZapEventLogger
}

// NewLogSink creates a new LogSink.
func NewLogSink(log *logging.ZapEventLogger) *LogSink {
	return &LogSink{log: log}
}

// Notify implements Sink.
func (s *LogSink) Notify(n Notification) {
	if !n.Show {
		return
	}
	s.log.Infof("%s: %s", n.Title, n.Message)
}

type multi []Sink

// Multi returns a Sink that forwards every notification to all sinks in order.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Notify(n Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

// MessageOr returns msg, or GenericRetryMessage if msg is empty.
func MessageOr(msg string) string {
	if msg == "" {
		return GenericRetryMessage
	}
	return msg
}
