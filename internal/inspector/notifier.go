package inspector

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier delivers one push notification.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// PushoverNotifier sends notifications through the Pushover API.
type PushoverNotifier struct {
	httpClient *resty.Client
	url        string
	user       string
	token      string
	logger     *zap.Logger
}

var _ Notifier = (*PushoverNotifier)(nil)

// NewPushoverNotifier creates the Pushover client.
func NewPushoverNotifier(url, user, token string, logger *zap.Logger) *PushoverNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second)

	return &PushoverNotifier{
		httpClient: client,
		url:        url,
		user:       user,
		token:      token,
		logger:     logger,
	}
}

// Notify posts the message to Pushover.
func (n *PushoverNotifier) Notify(ctx context.Context, message string) error {
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"user":    n.user,
			"token":   n.token,
			"message": message,
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("pushover returned status %d: %s", resp.StatusCode(), resp.String())
	}

	n.logger.Info("Notification sent", zap.String("message", message))
	return nil
}
