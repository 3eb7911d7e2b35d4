package msgbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/textileio/bidder-core/auction"
	"github.com/textileio/bidder-core/notify"
	logging "github.com/textileio/go-log/v2"
)

var log = logging.Logger("msgbroker")

// MsgBroker is a message-broker for async message communication.
type MsgBroker interface {
	// PublishMsg publishes a message to the desired topic.
	PublishMsg(ctx context.Context, topicName TopicName, data []byte) error
}

// TopicName is a topic name.
type TopicName string

const (
	// NotificationsTopic is the topic name for user-facing bid notifications.
	NotificationsTopic TopicName = "bid-notifications"
	// AuctionSnapshotsTopic is the topic name for observed auction snapshots.
	AuctionSnapshotsTopic TopicName = "auction-snapshots"
)

// AuctionSnapshot is the wire format of an auction snapshot. Amounts are decimal wei strings.
type AuctionSnapshot struct {
	AuctionID string    `json:"auctionId"`
	Amount    string    `json:"amount"`
	Bidder    string    `json:"bidder,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Settled   bool      `json:"settled"`
}

// PublishMsgNotification publishes a notification to the notifications topic.
func PublishMsgNotification(ctx context.Context, mb MsgBroker, n notify.Notification) error {
	return marshalAndPublish(ctx, mb, NotificationsTopic, n)
}

// PublishMsgAuctionSnapshot publishes an auction snapshot to the snapshots topic.
func PublishMsgAuctionSnapshot(ctx context.Context, mb MsgBroker, a auction.Auction) error {
	msg := AuctionSnapshot{
		AuctionID: bigString(a),
		Amount:    "0",
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Settled:   a.Settled,
	}
	if a.Amount != nil {
		msg.Amount = a.Amount.String()
	}
	if a.HasBidder() {
		msg.Bidder = a.Bidder.Hex()
	}
	return marshalAndPublish(ctx, mb, AuctionSnapshotsTopic, msg)
}

func bigString(a auction.Auction) string {
	if a.ID == nil {
		return ""
	}
	return a.ID.String()
}

func marshalAndPublish(ctx context.Context, mb MsgBroker, topic TopicName, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %s message: %v", topic, err)
	}
	if err := mb.PublishMsg(ctx, topic, data); err != nil {
		return fmt.Errorf("publishing to %s topic: %v", topic, err)
	}
	return nil
}

// NotificationSink is a notify.Sink publishing every notification to the broker.
type NotificationSink struct {
	mb      MsgBroker
	timeout time.Duration
}

var _ notify.Sink = (*NotificationSink)(nil)

// NewNotificationSink returns a new NotificationSink.
func NewNotificationSink(mb MsgBroker, timeout time.Duration) *NotificationSink {
	return &NotificationSink{mb: mb, timeout: timeout}
}

// Notify implements notify.Sink. Publishing errors are logged.
func (s *NotificationSink) Notify(n notify.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := PublishMsgNotification(ctx, s.mb, n); err != nil {
		log.Errorf("publishing notification: %v", err)
	}
}

// SnapshotPublisher forwards auction updates to the broker.
type SnapshotPublisher struct {
	mb      MsgBroker
	timeout time.Duration
}

// NewSnapshotPublisher returns a new SnapshotPublisher.
func NewSnapshotPublisher(mb MsgBroker, timeout time.Duration) *SnapshotPublisher {
	return &SnapshotPublisher{mb: mb, timeout: timeout}
}

// HandleAuctionUpdate publishes a.
func (p *SnapshotPublisher) HandleAuctionUpdate(a auction.Auction) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := PublishMsgAuctionSnapshot(ctx, p.mb, a); err != nil {
		log.Errorf("publishing auction snapshot: %v", err)
	}
}

// HandleMinBidIncrement implements updater.UpdateDelegate.
func (p *SnapshotPublisher) HandleMinBidIncrement(decimal.Decimal) {}

// HandleError implements updater.UpdateDelegate.
func (p *SnapshotPublisher) HandleError(error) {}
