package messaging

import "confdesk/src-server/model"

// Template is a channel, subject and body with {{placeholders}}.
type Template struct {
	Channel model.Channel
	Subject string
	Body    string
}

// defaultTemplates are used when an event has no template of that name.
var defaultTemplates = map[string]Template{
	model.TEMPLATE_REGISTRATION_CONFIRMATION: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Your registration for {{event_name}}",
		Body: "Dear {{attendee_name}},\n\n" +
			"Thank you for registering for {{event_name}} ({{event_dates}}, {{event_venue}}).\n" +
			"Registration number: {{registration_number}}\n" +
			"Status: {{status}}, payment: {{payment_status}}\n\n" +
			"Show this link at the registration desk: {{check_in_url}}\n",
	},
	model.TEMPLATE_REGISTRATION_CONFIRMED: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Registration confirmed: {{event_name}}",
		Body: "Dear {{attendee_name}},\n\n" +
			"Your registration {{registration_number}} for {{event_name}} is confirmed.\n" +
			"Show this link at the registration desk: {{check_in_url}}\n",
	},
	model.TEMPLATE_ABSTRACT_DECISION: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Abstract {{abstract_number}}: {{abstract_status}}",
		Body: "Dear {{presenting_author}},\n\n" +
			"The review of your abstract \"{{abstract_title}}\" ({{abstract_number}}) for {{event_name}} " +
			"is complete. Decision: {{abstract_status}}.\n\n{{decision_note}}\n",
	},
	model.TEMPLATE_FACULTY_INVITATION: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Invitation to speak at {{event_name}}",
		Body: "Dear {{faculty_name}},\n\n" +
			"We would be honoured to have you as faculty at {{event_name}} ({{event_dates}}, {{event_venue}}).\n" +
			"Please accept or decline here: {{invite_url}}\n",
	},
	model.TEMPLATE_TRAVEL_ITINERARY: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Your travel for {{event_name}}",
		Body: "Dear {{faculty_name}},\n\n" +
			"Arrival: {{arrival}}\nDeparture: {{departure}}\n" +
			"Hotel: {{hotel_name}} ({{hotel_check_in}} to {{hotel_check_out}}), confirmation {{confirmation_code}}\n",
	},
	model.TEMPLATE_SESSION_REMINDER: {
		Channel: model.CHANNEL_EMAIL,
		Subject: "Reminder: {{session_title}} at {{session_start}}",
		Body: "Dear {{faculty_name}},\n\n" +
			"This is a reminder that you are {{assignment_role}} at \"{{session_title}}\" " +
			"in {{session_hall}}, starting {{session_start}}.\n",
	},
}

// DefaultTemplate returns the built-in template for name.
func DefaultTemplate(name string) (Template, bool) {
	t, ok := defaultTemplates[name]
	return t, ok
}
