package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"confdesk/src-server/conflict"
	"confdesk/src-server/messaging"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

func SessionReminders(as *utils.AppState) *Poller {
	return NewPoller("session-reminders", as.Config.GetSchedulerInterval(), func(ctx context.Context, now time.Time) error {
		return RunSessionReminders(ctx, as, now)
	})
}

// RunSessionReminders reminds accepted faculty of session occurrences that
// start within the reminder lead of now. A reminder is claimed before it is
// sent, so a failed send is not repeated.
func RunSessionReminders(ctx context.Context, as *utils.AppState, now time.Time) error {
	now = now.UTC()
	horizon := now.Add(as.Config.GetReminderLead())

	sessions := make([]model.ProgramSession, 0)
	if err := as.BunDB.NewSelect().
		Model(&sessions).
		Relation("Assignments").
		Where("program_session.start_at <= ?", horizon).
		Where("(program_session.rrule != '' OR program_session.start_at > ?)", now).
		Scan(ctx); err != nil {
		return fmt.Errorf("RunSessionReminders: %w", err)
	}

	events := make(map[string]*model.Event)
	for i := range sessions {
		s := &sessions[i]
		if len(s.Assignments) == 0 {
			continue
		}
		event, ok := events[s.EventID]
		if !ok {
			var err error
			if event, err = model.GetEvent(ctx, as.BunDB, s.EventID); err != nil {
				return fmt.Errorf("RunSessionReminders: %w", err)
			}
			events[s.EventID] = event
		}
		if event.Status == model.EVENT_STATUS_CANCELLED {
			continue
		}

		until := horizon
		if limit := conflict.ExpansionLimit(event); limit.Before(until) {
			until = limit
		}
		occurrences, err := conflict.Occurrences(s, until)
		if err != nil {
			slog.Warn("can't expand session for reminders", "session_id", s.ID, "error", err)
			continue
		}
		for _, o := range occurrences {
			if !o.Start.After(now) || o.Start.After(horizon) {
				continue
			}
			for _, a := range s.Assignments {
				if err := remind(ctx, as, event, s, a, o.Start, now); err != nil {
					return fmt.Errorf("RunSessionReminders: %w", err)
				}
			}
		}
	}
	return nil
}

func remind(ctx context.Context, as *utils.AppState, event *model.Event, s *model.ProgramSession, a *model.SessionAssignment, occurrence, now time.Time) error {
	faculty, err := model.GetFaculty(ctx, as.BunDB, event.ID, a.FacultyID)
	if err != nil {
		return err
	}
	if faculty.InviteStatus != model.INVITE_STATUS_ACCEPTED {
		return nil
	}
	claimed, err := model.ClaimReminder(ctx, as.BunDB, s.ID, faculty.ID, occurrence, now)
	if err != nil || !claimed {
		return err
	}

	loc := event.Location(as.Config.GetLocation())
	recipient := messaging.FacultyRecipient(faculty, as.Config.GetPublicBaseURL())
	recipient.Vars["session_title"] = s.Title
	recipient.Vars["session_hall"] = s.Hall
	recipient.Vars["session_start"] = occurrence.In(loc).Format("Mon 02 Jan 15:04")
	recipient.Vars["assignment_role"] = string(a.Role)
	recipient.Vars["assignment_topic"] = a.Topic

	summary, err := as.Dispatcher.SendTemplate(ctx, event.ID, model.TEMPLATE_SESSION_REMINDER, event.Variables(as.Config.GetLocation()), recipient)
	if err != nil {
		slog.Warn("can't send session reminder", "session_id", s.ID, "faculty_id", faculty.ID, "error", err)
		return nil
	}
	slog.Debug("session reminder sent", "session_id", s.ID, "faculty_id", faculty.ID, "occurrence", occurrence, "sent", summary.Sent)
	return nil
}
