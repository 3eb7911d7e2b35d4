package gpubsub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/textileio/bidder-core/msgbroker"
	logging "github.com/textileio/go-log/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"google.golang.org/api/option"
)

var log = logging.Logger("gpubsub")

const emulatorHostEnv = "PUBSUB_EMULATOR_HOST"

// PubsubMsgBroker is an implementation of MsgBroker for Google PubSub.
type PubsubMsgBroker struct {
	topicPrefix string
	client      *pubsub.Client

	topicCacheLock sync.Mutex
	topicCache     map[string]*pubsub.Topic

	metrics metricsCollector
}

var _ msgbroker.MsgBroker = (*PubsubMsgBroker)(nil)

// New returns a new *PubsubMsgBroker. The api key can be empty only when
// PUBSUB_EMULATOR_HOST is set.
func New(projectID, apiKey, topicPrefix string) (*PubsubMsgBroker, error) {
	var opts []option.ClientOption
	if os.Getenv(emulatorHostEnv) == "" {
		if apiKey == "" {
			return nil, errors.New("api key is empty")
		}
		if projectID == "" {
			return nil, errors.New("project-id is empty")
		}
		opts = append(opts, option.WithCredentialsJSON([]byte(apiKey)))
	} else if projectID == "" {
		projectID = "test"
	}

	client, err := pubsub.NewClient(context.Background(), projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %v", err)
	}
	return NewWithClient(client, topicPrefix)
}

// NewWithClient returns a new *PubsubMsgBroker using an existing client.
// The broker takes ownership of the client.
func NewWithClient(client *pubsub.Client, topicPrefix string) (*PubsubMsgBroker, error) {
	if topicPrefix == "" {
		return nil, errors.New("topic-prefix is empty")
	}
	p := &PubsubMsgBroker{
		topicPrefix: topicPrefix,
		client:      client,
		topicCache:  map[string]*pubsub.Topic{},
	}
	p.initMetrics(metric.Must(global.Meter("gpubsub")))
	return p, nil
}

// PublishMsg publishes a message to the desired topic.
func (p *PubsubMsgBroker) PublishMsg(ctx context.Context, topicName msgbroker.TopicName, data []byte) (err error) {
	defer func() { p.metrics.onPublish(ctx, string(topicName), err) }()

	topic, err := p.getTopic(ctx, p.topicPrefix+string(topicName))
	if err != nil {
		return fmt.Errorf("get topic: %v", err)
	}
	pr := topic.Publish(ctx, &pubsub.Message{Data: data})

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	if _, err := pr.Get(ctx); err != nil {
		return fmt.Errorf("publishing to pubsub: %v", err)
	}

	return nil
}

func (p *PubsubMsgBroker) getTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	p.topicCacheLock.Lock()
	defer p.topicCacheLock.Unlock()
	topic, ok := p.topicCache[name]
	if ok {
		return topic, nil
	}

	topic = p.client.Topic(name)
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	exist, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic exists: %v", err)
	}
	if !exist {
		log.Warnf("creating topic %s", name)

		topic, err = p.client.CreateTopic(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("creating topic %s: %v", name, err)
		}
	}
	p.topicCache[name] = topic

	return topic, nil
}

// Close flushes pending messages and closes the client.
func (p *PubsubMsgBroker) Close() error {
	p.topicCacheLock.Lock()
	for _, t := range p.topicCache {
		t.Stop()
	}
	p.topicCacheLock.Unlock()

	if err := p.client.Close(); err != nil {
		return fmt.Errorf("closing pubsub client: %v", err)
	}
	return nil
}
