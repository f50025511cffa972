package scheduler

import (
	"context"
	"fmt"

	"confdesk/src-server/bus"
	"confdesk/src-server/messaging"
	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

// Notifications returns one bus handler per domain event that triggers an
// automatic message.
func Notifications(as *utils.AppState) []*bus.Handler {
	n := &notifier{as: as}
	return []*bus.Handler{
		as.Bus.NewHandler(bus.TOPIC_REGISTRATION_CREATED, n.registration(model.TEMPLATE_REGISTRATION_CONFIRMATION)),
		as.Bus.NewHandler(bus.TOPIC_REGISTRATION_CONFIRMED, n.registration(model.TEMPLATE_REGISTRATION_CONFIRMED)),
		as.Bus.NewHandler(bus.TOPIC_ABSTRACT_DECIDED, n.abstractDecided),
		as.Bus.NewHandler(bus.TOPIC_FACULTY_INVITED, n.facultyInvited),
		as.Bus.NewHandler(bus.TOPIC_TRAVEL_NOTIFY, n.travelNotify),
	}
}

type notifier struct {
	as *utils.AppState
}

func (n *notifier) eventVars(ctx context.Context, eventID string) (map[string]string, error) {
	event, err := model.GetEvent(ctx, n.as.BunDB, eventID)
	if err != nil {
		return nil, err
	}
	return event.Variables(n.as.Config.GetLocation()), nil
}

func (n *notifier) registration(template string) bus.HandlerFunc {
	return func(ctx context.Context, e bus.Event) error {
		vars, err := n.eventVars(ctx, e.EventID)
		if err != nil {
			return err
		}
		reg, err := model.GetRegistration(ctx, n.as.BunDB, e.EventID, e.SubjectID)
		if err != nil {
			return err
		}
		recipient := messaging.RegistrationRecipient(reg, n.as.Config.GetPublicBaseURL())
		if _, err := n.as.Dispatcher.SendTemplate(ctx, e.EventID, template, vars, recipient); err != nil {
			return fmt.Errorf("%s: %w", template, err)
		}
		return nil
	}
}

func (n *notifier) abstractDecided(ctx context.Context, e bus.Event) error {
	vars, err := n.eventVars(ctx, e.EventID)
	if err != nil {
		return err
	}
	abstract, err := model.GetAbstract(ctx, n.as.BunDB, e.EventID, e.SubjectID)
	if err != nil {
		return err
	}
	recipient := messaging.Recipient{
		Name:          abstract.PresentingAuthor,
		Email:         abstract.Email,
		Phone:         abstract.Phone,
		Vars:          abstract.Variables(),
		ReferenceType: "abstract",
		ReferenceID:   abstract.ID,
	}
	_, err = n.as.Dispatcher.SendTemplate(ctx, e.EventID, model.TEMPLATE_ABSTRACT_DECISION, vars, recipient)
	return err
}

func (n *notifier) facultyInvited(ctx context.Context, e bus.Event) error {
	vars, err := n.eventVars(ctx, e.EventID)
	if err != nil {
		return err
	}
	faculty, err := model.GetFaculty(ctx, n.as.BunDB, e.EventID, e.SubjectID)
	if err != nil {
		return err
	}
	recipient := messaging.FacultyRecipient(faculty, n.as.Config.GetPublicBaseURL())
	_, err = n.as.Dispatcher.SendTemplate(ctx, e.EventID, model.TEMPLATE_FACULTY_INVITATION, vars, recipient)
	return err
}

// travelNotify sends the itinerary of the faculty member in SubjectID. A
// channel on the event overrides the template's.
func (n *notifier) travelNotify(ctx context.Context, e bus.Event) error {
	event, err := model.GetEvent(ctx, n.as.BunDB, e.EventID)
	if err != nil {
		return err
	}
	faculty, err := model.GetFaculty(ctx, n.as.BunDB, e.EventID, e.SubjectID)
	if err != nil {
		return err
	}
	travel, err := model.GetTravel(ctx, n.as.BunDB, e.EventID, e.SubjectID)
	if err != nil {
		return err
	}
	template, err := n.as.Dispatcher.ResolveTemplate(ctx, e.EventID, model.TEMPLATE_TRAVEL_ITINERARY)
	if err != nil {
		return err
	}
	if channel := model.Channel(e.Channel); channel.Valid() {
		template.Channel = channel
	}

	recipient := messaging.FacultyRecipient(faculty, n.as.Config.GetPublicBaseURL())
	for k, v := range travel.Variables(event.Location(n.as.Config.GetLocation())) {
		recipient.Vars[k] = v
	}
	recipient.ReferenceType = "travel"
	recipient.ReferenceID = travel.ID

	_, err = n.as.Dispatcher.Send(ctx, messaging.Outgoing{
		EventID: e.EventID,
		Channel: template.Channel,
		Subject: template.Subject,
		Body:    template.Body,
		Vars:    event.Variables(n.as.Config.GetLocation()),
	}, []messaging.Recipient{recipient})
	return err
}
