package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mailboxPrefix = "mailbox:"
	mailboxSize   = 50
	mailboxTTL    = 24 * time.Hour
)

// CapturedEmail is one entry of a Redis mailbox.
type CapturedEmail struct {
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sentAt"`
}

// RedisSender captures mail in per-recipient Redis lists so end-to-end tests
// can read what would have been sent.
type RedisSender struct {
	client redis.Cmdable
}

func NewRedisSender(client redis.Cmdable) *RedisSender {
	return &RedisSender{client: client}
}

// MailboxKey is the list holding captured mail for address.
func MailboxKey(address string) string {
	return mailboxPrefix + strings.ToLower(strings.TrimSpace(address))
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	data, err := json.Marshal(CapturedEmail{
		To:      to,
		Subject: subject,
		Body:    string(rawMessage),
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, addr := range to {
			key := MailboxKey(addr)
			pipe.LPush(ctx, key, data)
			pipe.LTrim(ctx, key, 0, mailboxSize-1)
			pipe.Expire(ctx, key, mailboxTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to capture email in redis: %w", err)
	}
	return nil
}

// Latest returns the most recent captured email for address, or nil.
func (s *RedisSender) Latest(ctx context.Context, address string) (*CapturedEmail, error) {
	raw, err := s.client.LIndex(ctx, MailboxKey(address), 0).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mailbox: %w", err)
	}
	var out CapturedEmail
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode captured email: %w", err)
	}
	return &out, nil
}
