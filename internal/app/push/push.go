/*
Package push delivers web-push messages to browser subscriptions registered by
the web tier, used when a notification target has no live socket connection.
*/
package push

import (
	"context"
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"

	"trocchat/internal/app/store"
)

// Sender delivers one payload to one subscription and reports the provider's
// HTTP status code.
type Sender interface {
	Send(ctx context.Context, sub store.PushSubscription, payload []byte) (statusCode int, err error)
}

// WebPushSender implements Sender over the Web Push protocol with VAPID auth.
type WebPushSender struct {
	publicKey  string
	privateKey string
	subject    string
}

var _ Sender = (*WebPushSender)(nil)

// NewWebPushSender builds a sender from VAPID credentials. Returns nil when no
// key pair is configured, which disables web-push delivery.
func NewWebPushSender(publicKey, privateKey, subject string) *WebPushSender {
	if publicKey == "" || privateKey == "" {
		return nil
	}
	return &WebPushSender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subject:    subject,
	}
}

// Send pushes the payload to a single subscription endpoint.
func (s *WebPushSender) Send(ctx context.Context, sub store.PushSubscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subject,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60,
	})
	if err != nil {
		return 0, fmt.Errorf("send web push: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
