package domain

import (
	"strings"
	"time"
)

// MaxErrorLength bounds the stored failure message, in runes.
const MaxErrorLength = 2000

// Origin identifies the client session a job came from.
type Origin struct {
	GuildID   int64  `db:"guild_id" json:"guild_id"`
	ChannelID int64  `db:"channel_id" json:"channel_id"`
	AuthorID  int64  `db:"author_id" json:"author_id"`
	MessageID *int64 `db:"message_id" json:"message_id,omitempty"`
}

// Job represents one row of the durable job table
type Job struct {
	ID           int64      `db:"id"`
	Category     Category   `db:"category"`
	Payload      string     `db:"payload"`
	Status       Status     `db:"status"`
	ErrorMessage *string    `db:"error_message"`
	CreatedAt    time.Time  `db:"created_at"`
	ClaimedAt    *time.Time `db:"claimed_at"`
	FinishedAt   *time.Time `db:"finished_at"`
	Origin
}

// TruncateError shortens msg to MaxErrorLength runes. Invalid UTF-8 is
// replaced so the result is always storable as text.
func TruncateError(msg string) string {
	msg = strings.ToValidUTF8(msg, "\uFFFD")
	runes := []rune(msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}
	return string(runes[:MaxErrorLength])
}
