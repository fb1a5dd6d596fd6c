package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edupipe/edupipe/internal/jobs"
	"github.com/edupipe/edupipe/internal/provider/email"
)

// handleEmailSend delivers one notification email through the active
// mailer. Errors surface to the queue for retry; a sustained provider
// outage trips the breaker, which fast-fails the remaining attempts
// until the circuit resets.
func (d *Deps) handleEmailSend(ctx context.Context, args jobs.EmailSendArgs) error {
	to := args.To
	if to == "" {
		// Address resolution belongs to the user service; jobs enqueued
		// by the hub address users by id and fall back to this alias.
		to = fmt.Sprintf("user-%s@notifications.internal", args.UserID)
	}

	msgID, err := d.Mailer.Send(ctx, toMessage(args, to))
	if err != nil {
		return fmt.Errorf("send %s email to user %s: %w", args.Type, args.UserID, err)
	}

	d.Log.Info("notification email sent",
		zap.String("user_id", args.UserID),
		zap.String("type", args.Type),
		zap.String("provider", d.Mailer.Name()),
		zap.String("message_id", msgID))

	if args.EventID != "" {
		if err := d.Store.MarkEmailed(ctx, args.EventID); err != nil {
			d.Log.Warn("failed to stamp event as emailed",
				zap.String("event_id", args.EventID), zap.Error(err))
		}
	}
	return nil
}

func toMessage(args jobs.EmailSendArgs, to string) email.Message {
	return email.Message{
		To:      to,
		Subject: args.Subject,
		Body:    args.Body,
		Locale:  args.Locale,
	}
}
