package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cuongbtq/mediaqueue/internal/domain"
	"github.com/cuongbtq/mediaqueue/shared/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	messages []rabbitmq.Message
	retried  []bool
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg rabbitmq.Message) error {
	return p.record(msg, false)
}

func (p *fakePublisher) PublishWithRetry(_ context.Context, msg rabbitmq.Message) error {
	return p.record(msg, true)
}

func (p *fakePublisher) record(msg rabbitmq.Message, retry bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	p.retried = append(p.retried, retry)
	return nil
}

func testOrigin() domain.Origin {
	messageID := int64(555)
	return domain.Origin{GuildID: 1, ChannelID: 2, AuthorID: 3, MessageID: &messageID}
}

func newNotifier(p Publisher) *AMQPNotifier {
	return NewAMQPNotifier(p, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotify(t *testing.T) {
	p := &fakePublisher{}
	n := newNotifier(p)

	require.NoError(t, n.Notify(context.Background(), testOrigin(), "Dedup failed: timeout"))
	require.Len(t, p.messages, 1)

	msg := p.messages[0]
	assert.Equal(t, RoutingNotify, msg.RoutingKey)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.NotEmpty(t, msg.MessageID)
	assert.True(t, p.retried[0])

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Body, &ev))
	assert.Equal(t, int64(2), ev.ChannelID)
	require.NotNil(t, ev.ReplyTo)
	assert.Equal(t, int64(555), *ev.ReplyTo)
	assert.Equal(t, "Dedup failed: timeout", ev.Text)
}

func TestDeliver(t *testing.T) {
	p := &fakePublisher{}
	n := newNotifier(p)
	path := filepath.Join(t.TempDir(), "output.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o644))

	target := int64(900)
	meta := Metadata{JobID: 7, Category: domain.CategoryBackgroundRemoval}

	require.NoError(t, n.Deliver(context.Background(), testOrigin(), &target, path, meta))
	require.NoError(t, n.Deliver(context.Background(), testOrigin(), nil, path, meta))
	require.Len(t, p.messages, 2)

	toResults := p.messages[0]
	assert.Equal(t, RoutingDeliver, toResults.RoutingKey)
	assert.Equal(t, "image/png", toResults.ContentType)
	assert.Equal(t, []byte("png-bytes"), toResults.Body)
	assert.Equal(t, int64(900), toResults.Headers["channel_id"])
	assert.Equal(t, "output.png", toResults.Headers["filename"])
	assert.NotContains(t, toResults.Headers, "reply_to")

	inPlace := p.messages[1]
	assert.Equal(t, int64(2), inPlace.Headers["channel_id"])
	assert.Equal(t, int64(555), inPlace.Headers["reply_to"])

	err := n.Deliver(context.Background(), testOrigin(), nil, filepath.Join(t.TempDir(), "missing.png"), meta)
	assert.Error(t, err)
}

func TestOpenStatus_Edit(t *testing.T) {
	p := &fakePublisher{}
	n := newNotifier(p)

	status, err := n.OpenStatus(context.Background(), 9, testOrigin(), "Removing background… **0%**")
	require.NoError(t, err)
	require.NoError(t, status.Edit(context.Background(), "Removing background… **15%**"))

	require.Len(t, p.messages, 2)
	assert.Equal(t, RoutingStatusOpen, p.messages[0].RoutingKey)
	assert.Equal(t, RoutingStatusEdit, p.messages[1].RoutingKey)
	assert.False(t, p.retried[1], "progress edits are not retried")

	var opened, edited Event
	require.NoError(t, json.Unmarshal(p.messages[0].Body, &opened))
	require.NoError(t, json.Unmarshal(p.messages[1].Body, &edited))
	assert.Equal(t, opened.StatusID, edited.StatusID)
	assert.Equal(t, status.(*StatusMessage).ID(), edited.StatusID)
	assert.Equal(t, int64(9), edited.JobID)
}

func TestOpenStatus_PublishFailure(t *testing.T) {
	n := newNotifier(&fakePublisher{err: errors.New("not connected to RabbitMQ")})

	status, err := n.OpenStatus(context.Background(), 9, testOrigin(), "x")
	assert.Error(t, err)
	assert.Nil(t, status)
}
