package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"enrollment/internal/notify/whatsapp"
	"enrollment/internal/platform/config"
	"enrollment/pkg/platform/privacy"
)

// Channel delivers template messages to a phone number.
//
// accepted is true only when the provider acknowledged the message. A nil error with
// accepted false is a rejection; callers treat both the same way.
type Channel interface {
	Name() string
	Send(ctx context.Context, to, templateID string, params []string) (accepted bool, messageID string, err error)
}

// NewChannel builds the channel selected by cfg.Channel. Anything but "whatsapp" logs.
func NewChannel(cfg config.NotifyConfig, logger *slog.Logger) Channel {
	if cfg.Channel == "whatsapp" {
		return whatsapp.New(whatsapp.Config{
			BaseURL:       cfg.WhatsApp.BaseURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			AccessToken:   cfg.WhatsApp.AccessToken,
			Language:      cfg.Language,
		})
	}
	return NewLogChannel(logger)
}

// LogChannel accepts every message and writes it to the log. Used in development.
type LogChannel struct {
	logger *slog.Logger
}

func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(ctx context.Context, to, templateID string, params []string) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	messageID := "log-" + uuid.NewString()
	c.logger.InfoContext(ctx, "notification message",
		"to", privacy.MaskContact(to),
		"template", templateID,
		"params", len(params),
		"message_id", messageID,
	)
	return true, messageID, nil
}
