package fakemsgbroker

import (
	"context"
	"fmt"
	"sync"

	mbroker "github.com/textileio/bidder-core/msgbroker"
)

// FakeMsgBroker is an in-memory message broker for tests.
type FakeMsgBroker struct {
	lock          sync.Mutex
	topicMessages map[mbroker.TopicName][][]byte
	err           error
}

var _ mbroker.MsgBroker = (*FakeMsgBroker)(nil)

// New returns a new FakeMsgBroker.
func New() *FakeMsgBroker {
	return &FakeMsgBroker{
		topicMessages: map[mbroker.TopicName][][]byte{},
	}
}

// PublishMsg implements msgbroker.MsgBroker.
func (b *FakeMsgBroker) PublishMsg(ctx context.Context, topicName mbroker.TopicName, data []byte) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.err != nil {
		return b.err
	}
	b.topicMessages[topicName] = append(b.topicMessages[topicName], data)

	return nil
}

// Helpers for tests

// FailWith makes every following publish fail with err.
func (b *FakeMsgBroker) FailWith(err error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.err = err
}

// TotalPublished returns the number of messages published to all topics.
func (b *FakeMsgBroker) TotalPublished() int {
	b.lock.Lock()
	defer b.lock.Unlock()

	var count int
	for _, msgs := range b.topicMessages {
		count += len(msgs)
	}

	return count
}

// TotalPublishedTopic returns the number of messages published to name.
func (b *FakeMsgBroker) TotalPublishedTopic(name mbroker.TopicName) int {
	b.lock.Lock()
	defer b.lock.Unlock()

	return len(b.topicMessages[name])
}

// GetMsg returns the idx-th message published to name.
func (b *FakeMsgBroker) GetMsg(name mbroker.TopicName, idx int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	topic := b.topicMessages[name]
	if idx >= len(topic) {
		return nil, fmt.Errorf("topic queue has length %d smaller than idx access %d", len(topic), idx)
	}

	return topic[idx], nil
}
