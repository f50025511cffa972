package messaging

import (
	"context"
	"fmt"

	"confdesk/src-server/model"

	"github.com/uptrace/bun"
)

func RegistrationRecipient(r *model.Registration, baseURL string) Recipient {
	vars := r.Variables()
	vars["check_in_url"] = r.CheckInURL(baseURL)
	return Recipient{
		Name:          r.AttendeeName,
		Email:         r.Email,
		Phone:         r.Phone,
		Vars:          vars,
		ReferenceType: "registration",
		ReferenceID:   r.ID,
	}
}

func FacultyRecipient(f *model.Faculty, baseURL string) Recipient {
	vars := f.Variables()
	vars["invite_url"] = f.InviteURL(baseURL)
	return Recipient{
		Name:          f.Name,
		Email:         f.Email,
		Phone:         f.Phone,
		Vars:          vars,
		ReferenceType: "faculty",
		ReferenceID:   f.ID,
	}
}

// Recipients resolves a bulk message audience. Registrations are the
// default audience.
func Recipients(ctx context.Context, db bun.IDB, eventID string, audience model.Audience, baseURL string) ([]Recipient, error) {
	switch audience.Kind {
	case model.AUDIENCE_FACULTY:
		faculty, err := audience.ResolveFaculty(ctx, db, eventID)
		if err != nil {
			return nil, fmt.Errorf("Recipients: %w", err)
		}
		recipients := make([]Recipient, 0, len(faculty))
		for i := range faculty {
			recipients = append(recipients, FacultyRecipient(&faculty[i], baseURL))
		}
		return recipients, nil
	case "", model.AUDIENCE_REGISTRATIONS:
		registrations, err := audience.ResolveRegistrations(ctx, db, eventID)
		if err != nil {
			return nil, fmt.Errorf("Recipients: %w", err)
		}
		recipients := make([]Recipient, 0, len(registrations))
		for i := range registrations {
			recipients = append(recipients, RegistrationRecipient(&registrations[i], baseURL))
		}
		return recipients, nil
	}
	return nil, fmt.Errorf("Recipients: %w: unknown audience %q", model.ErrInvalid, audience.Kind)
}
