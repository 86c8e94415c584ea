package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/shared/rabbitmq"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys consumed by the chat gateway.
const (
	RoutingNotify     = "media.notify"
	RoutingDeliver    = "media.deliver"
	RoutingStatusOpen = "media.status.open"
	RoutingStatusEdit = "media.status.edit"
)

// Publisher sends messages to the broker.
type Publisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// Metadata describes a delivered artifact.
type Metadata struct {
	JobID    int64
	Category domain.Category
	Caption  string
}

// Status is an editable status message.
type Status interface {
	Edit(ctx context.Context, text string) error
}

// Event is the JSON body of notify and status messages.
type Event struct {
	JobID     int64  `json:"job_id,omitempty"`
	StatusID  string `json:"status_id,omitempty"`
	GuildID   int64  `json:"guild_id"`
	ChannelID int64  `json:"channel_id"`
	AuthorID  int64  `json:"author_id"`
	ReplyTo   *int64 `json:"reply_to,omitempty"`
	Text      string `json:"text"`
}

// AMQPNotifier publishes replies, status edits and result files to the chat gateway.
type AMQPNotifier struct {
	publisher Publisher
	mirror    *StatusMirror
	logger    *slog.Logger
}

// NewAMQPNotifier creates a notifier. mirror may be nil.
func NewAMQPNotifier(publisher Publisher, mirror *StatusMirror, logger *slog.Logger) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher, mirror: mirror, logger: logger}
}

func newEvent(origin domain.Origin, text string) Event {
	return Event{
		GuildID:   origin.GuildID,
		ChannelID: origin.ChannelID,
		AuthorID:  origin.AuthorID,
		ReplyTo:   origin.MessageID,
		Text:      text,
	}
}

func jsonMessage(routingKey string, ev Event) (rabbitmq.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return rabbitmq.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return rabbitmq.Message{
		RoutingKey:  routingKey,
		ContentType: "application/json",
		MessageID:   uuid.NewString(),
		Body:        body,
	}, nil
}

// Notify replies to the origin message, or mentions the author when the
// message is gone.
func (n *AMQPNotifier) Notify(ctx context.Context, origin domain.Origin, text string) error {
	msg, err := jsonMessage(RoutingNotify, newEvent(origin, text))
	if err != nil {
		return err
	}
	return n.publisher.PublishWithRetry(ctx, msg)
}

// Deliver uploads the artifact at path to target, or to the origin channel
// when target is nil.
func (n *AMQPNotifier) Deliver(ctx context.Context, origin domain.Origin, target *int64, path string, meta Metadata) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	channelID := origin.ChannelID
	if target != nil {
		channelID = *target
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	headers := amqp.Table{
		"job_id":     meta.JobID,
		"category":   string(meta.Category),
		"filename":   filepath.Base(path),
		"guild_id":   origin.GuildID,
		"channel_id": channelID,
		"author_id":  origin.AuthorID,
		"caption":    meta.Caption,
	}
	if target == nil && origin.MessageID != nil {
		headers["reply_to"] = *origin.MessageID
	}

	err = n.publisher.PublishWithRetry(ctx, rabbitmq.Message{
		RoutingKey:  RoutingDeliver,
		ContentType: contentType,
		MessageID:   uuid.NewString(),
		Headers:     headers,
		Body:        body,
	})
	if err != nil {
		return err
	}

	n.logger.Info("Artifact delivered",
		slog.Int64("job_id", meta.JobID),
		slog.Int64("channel_id", channelID),
		slog.Int("size", len(body)),
	)
	return nil
}

// OpenStatus posts a status message replying to the origin and returns a
// handle for editing it.
func (n *AMQPNotifier) OpenStatus(ctx context.Context, jobID int64, origin domain.Origin, text string) (Status, error) {
	status := &StatusMessage{
		id:       uuid.NewString(),
		jobID:    jobID,
		origin:   origin,
		notifier: n,
	}

	ev := newEvent(origin, text)
	ev.JobID = jobID
	ev.StatusID = status.id

	msg, err := jsonMessage(RoutingStatusOpen, ev)
	if err != nil {
		return nil, err
	}
	if err := n.publisher.PublishWithRetry(ctx, msg); err != nil {
		return nil, err
	}

	n.mirrorStatus(ctx, jobID, text)
	return status, nil
}

func (n *AMQPNotifier) mirrorStatus(ctx context.Context, jobID int64, text string) {
	if n.mirror == nil {
		return
	}
	if err := n.mirror.SetStatus(ctx, jobID, text); err != nil {
		n.logger.Debug("Failed to mirror job status",
			slog.Int64("job_id", jobID),
			slog.Any("error", err),
		)
	}
}

// StatusMessage is a status message opened through AMQPNotifier.
type StatusMessage struct {
	id       string
	jobID    int64
	origin   domain.Origin
	notifier *AMQPNotifier
}

// ID returns the handle the gateway uses to find the message.
func (s *StatusMessage) ID() string {
	return s.id
}

// Edit replaces the status text. Edits are published once, without retry.
func (s *StatusMessage) Edit(ctx context.Context, text string) error {
	ev := newEvent(s.origin, text)
	ev.JobID = s.jobID
	ev.StatusID = s.id

	msg, err := jsonMessage(RoutingStatusEdit, ev)
	if err != nil {
		return err
	}
	msg.Headers = amqp.Table{"status_id": s.id}
	if err := s.notifier.publisher.Publish(ctx, msg); err != nil {
		return err
	}

	s.notifier.mirrorStatus(ctx, s.jobID, text)
	return nil
}
