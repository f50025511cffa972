package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"confdesk/src-server/messaging"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

func ScheduledMessages(as *utils.AppState) *Poller {
	return NewPoller("scheduled-messages", as.Config.GetSchedulerInterval(), func(ctx context.Context, now time.Time) error {
		return RunScheduledMessages(ctx, as, now)
	})
}

// RunScheduledMessages sends every pending message due at now. Each
// message is claimed first so two workers never send the same one.
func RunScheduledMessages(ctx context.Context, as *utils.AppState, now time.Time) error {
	due, err := model.ClaimDueMessages(ctx, as.BunDB, now)
	if err != nil {
		return fmt.Errorf("RunScheduledMessages: %w", err)
	}
	for i := range due {
		m := &due[i]
		summary, err := SendBulk(ctx, as, m)
		m.SentCount = summary.Sent
		m.FailedCount = summary.Failed
		if err != nil {
			m.Error = err.Error()
			slog.Warn("scheduled message failed", "scheduled_message_id", m.ID, "event_id", m.EventID, "error", err)
		}
		if err := model.FinishScheduledMessage(ctx, as.BunDB, m, time.Now()); err != nil {
			return fmt.Errorf("RunScheduledMessages: %w", err)
		}
		slog.Info("scheduled message processed",
			"scheduled_message_id", m.ID,
			"status", m.Status,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
		)
	}
	return nil
}

// SendBulk sends m to its audience right away. It serves both scheduled
// messages and the immediate send route.
func SendBulk(ctx context.Context, as *utils.AppState, m *model.ScheduledMessage) (messaging.Summary, error) {
	event, err := model.GetEvent(ctx, as.BunDB, m.EventID)
	if err != nil {
		return messaging.Summary{}, err
	}
	out := messaging.Outgoing{
		EventID: m.EventID,
		Channel: m.Channel,
		Subject: m.Subject,
		Body:    m.Body,
		Vars:    event.Variables(as.Config.GetLocation()),
	}
	if m.TemplateID != "" {
		template, err := model.GetMessageTemplate(ctx, as.BunDB, m.EventID, m.TemplateID)
		if err != nil {
			return messaging.Summary{}, err
		}
		out.Channel = template.Channel
		out.Subject = template.Subject
		out.Body = template.Body
	}
	recipients, err := messaging.Recipients(ctx, as.BunDB, m.EventID, m.Audience, as.Config.GetPublicBaseURL())
	if err != nil {
		return messaging.Summary{}, err
	}
	return as.Dispatcher.Send(ctx, out, recipients)
}
