package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const TopicExamSubmitted = "exam.submitted"

// ExamSubmitted is emitted after a submission has been durably written.
type ExamSubmitted struct {
	ResultID      int64   `json:"result_id"`
	ExamPackageID int64   `json:"exam_package_id"`
	SubjectID     *int64  `json:"subject_id,omitempty"`
	UserID        int64   `json:"user_id"`
	TotalScore    float64 `json:"total_score"`
	Auto          bool    `json:"auto"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Bus is an in-process pub/sub for domain events. The GoChannel
// transport keeps the submission path decoupled from its observers
// without requiring a broker.
type Bus struct {
	channel *gochannel.GoChannel
}

func NewBus() *Bus {
	return &Bus{
		channel: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			watermill.NewStdLogger(false, false),
		),
	}
}

func (b *Bus) PublishExamSubmitted(ctx context.Context, evt ExamSubmitted) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.channel.Publish(TopicExamSubmitted, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicExamSubmitted, err)
	}
	return nil
}

// RunAuditLogger consumes submission events and writes one structured
// log line per submission. It blocks until the context is cancelled.
func (b *Bus) RunAuditLogger(ctx context.Context) error {
	msgs, err := b.channel.Subscribe(ctx, TopicExamSubmitted)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicExamSubmitted, err)
	}
	for msg := range msgs {
		var evt ExamSubmitted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			log.Printf("drop malformed %s event: %v", TopicExamSubmitted, err)
			msg.Ack()
			continue
		}
		entry := map[string]any{
			"event":           TopicExamSubmitted,
			"result_id":       evt.ResultID,
			"exam_package_id": evt.ExamPackageID,
			"user_id":         evt.UserID,
			"total_score":     evt.TotalScore,
			"auto":            evt.Auto,
		}
		raw, _ := json.Marshal(entry)
		log.Printf("%s", string(raw))
		msg.Ack()
	}
	return nil
}

func (b *Bus) Close() error {
	return b.channel.Close()
}
