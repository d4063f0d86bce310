package notify

import (
	"log/slog"

	"opsalert/internal/config"
	"opsalert/internal/dispatch"
)

// BuildSenders constructs all enabled channel senders, each wrapped
// with its configured retry policy.
// Params: notify section and logger for retry attempt logging.
// Returns: sender list, resource cleanup callback, and setup error.
func BuildSenders(cfg config.NotifyConfig, logger *slog.Logger) ([]dispatch.Sender, func(), error) {
	var (
		senders []dispatch.Sender
		closers []func() error
	)
	closeAll := func() {
		for _, closeFn := range closers {
			_ = closeFn()
		}
	}

	if cfg.Email.Enabled {
		senders = append(senders, WithRetry(NewEmailSender(cfg.Email), cfg.Email.Retry, logger))
	}
	if cfg.Chat.Enabled {
		senders = append(senders, WithRetry(NewChatSender(cfg.Chat), cfg.Chat.Retry, logger))
	}
	if cfg.Webhook.Enabled {
		senders = append(senders, WithRetry(NewWebhookSender(cfg.Webhook), cfg.Webhook.Retry, logger))
	}
	if cfg.Tracker.Enabled {
		senders = append(senders, WithRetry(NewTrackerSender(cfg.Tracker), cfg.Tracker.Retry, logger))
	}
	if cfg.Archive.Enabled {
		archive, err := NewArchiveSender(cfg.Archive)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, archive.Close)
		senders = append(senders, WithRetry(archive, cfg.Archive.Retry, logger))
	}
	if cfg.Stream.Enabled {
		stream, err := NewStreamSender(cfg.Stream)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, stream.Close)
		senders = append(senders, WithRetry(stream, cfg.Stream.Retry, logger))
	}

	return senders, closeAll, nil
}
