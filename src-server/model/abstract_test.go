package model_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"confdesk/src-server/model"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func newTestMember(t *testing.T, db bun.IDB, role model.Role) *model.TeamMember {
	t.Helper()
	member := &model.TeamMember{
		ID:     uuid.NewString(),
		Email:  uuid.NewString()[:8] + "@example.com",
		Name:   "Member " + string(role),
		Role:   role,
		Active: true,
	}
	if err := member.SetPassword("password123"); err != nil {
		t.Fatal(err)
	}
	if err := member.Upsert(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return member
}

func canReview(r model.Role) bool {
	return r == model.ROLE_REVIEWER || r == model.ROLE_ADMIN || r == model.ROLE_OWNER
}

func TestSubmitAbstract(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	deadline := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := newTestEvent(t, db, func(e *model.Event) {
		e.AbstractWordLimit = 5
		e.AbstractDeadline = &deadline
	})
	before := deadline.Add(-time.Hour)

	in := model.AbstractInput{
		Title:            "Outcomes of early PCI",
		Body:             "one two three four five",
		PresentingAuthor: "Dr. Nair",
		Email:            "nair@example.com",
	}

	// case: numbering
	for i, want := range []string{"ABS-0001", "ABS-0002"} {
		abstract, err := model.SubmitAbstract(ctx, db, event.ID, in, before)
		if err != nil {
			t.Fatal(err)
		}
		if abstract.AbstractNumber != want {
			t.Errorf("abstract %d number = %q, want %q", i, abstract.AbstractNumber, want)
		}
		if abstract.Status != model.ABSTRACT_STATUS_SUBMITTED || len(abstract.Authors) != 1 {
			t.Errorf("unexpected abstract %+v", abstract)
		}
	}

	// case: word limit
	long := in
	long.Body = strings.Repeat("word ", 6)
	if _, err := model.SubmitAbstract(ctx, db, event.ID, long, before); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}

	// case: deadline
	if _, err := model.SubmitAbstract(ctx, db, event.ID, in, deadline.Add(time.Minute)); !errors.Is(err, model.ErrSubmissionClosed) {
		t.Errorf("expected closed, got %v", err)
	}

	// case: numbers are per event
	other := newTestEvent(t, db, nil)
	abstract, err := model.SubmitAbstract(ctx, db, other.ID, in, before)
	if err != nil {
		t.Fatal(err)
	}
	if abstract.AbstractNumber != "ABS-0001" {
		t.Errorf("number = %q, want ABS-0001", abstract.AbstractNumber)
	}
}

func TestReviewFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	event := newTestEvent(t, db, nil)
	abstract, err := model.SubmitAbstract(ctx, db, event.ID, model.AbstractInput{
		Title:            "Stroke registry",
		Body:             "a short abstract",
		PresentingAuthor: "Dr. Sen",
		Email:            "sen@example.com",
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	reviewerA := newTestMember(t, db, model.ROLE_REVIEWER)
	reviewerB := newTestMember(t, db, model.ROLE_REVIEWER)
	viewer := newTestMember(t, db, model.ROLE_VIEWER)

	// case: viewers can't review
	if err := model.AssignReviewers(ctx, db, event.ID, abstract.ID, []string{viewer.ID}, canReview); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}
	if err := model.AssignReviewers(ctx, db, event.ID, abstract.ID, []string{reviewerA.ID, reviewerB.ID}, canReview); err != nil {
		t.Fatal(err)
	}
	// assigning twice is harmless
	if err := model.AssignReviewers(ctx, db, event.ID, abstract.ID, []string{reviewerA.ID}, canReview); err != nil {
		t.Fatal(err)
	}

	// case: scores out of range
	if _, err := model.SubmitReview(ctx, db, event.ID, &model.AbstractReview{
		AbstractID:     abstract.ID,
		ReviewerID:     reviewerA.ID,
		Scores:         map[string]int{"novelty": 11},
		Recommendation: model.RECOMMENDATION_ACCEPT,
	}); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}

	// case: average over reviews, replacing an earlier review
	for _, review := range []*model.AbstractReview{
		{AbstractID: abstract.ID, ReviewerID: reviewerA.ID, Scores: map[string]int{"novelty": 2, "method": 2}, Recommendation: model.RECOMMENDATION_REJECT},
		{AbstractID: abstract.ID, ReviewerID: reviewerA.ID, Scores: map[string]int{"novelty": 8, "method": 6}, Recommendation: model.RECOMMENDATION_ACCEPT},
		{AbstractID: abstract.ID, ReviewerID: reviewerB.ID, Scores: map[string]int{"novelty": 5, "method": 4}, Recommendation: model.RECOMMENDATION_REVISE},
	} {
		if abstract, err = model.SubmitReview(ctx, db, event.ID, review); err != nil {
			t.Fatal(err)
		}
	}
	if abstract.Status != model.ABSTRACT_STATUS_UNDER_REVIEW {
		t.Errorf("status = %s", abstract.Status)
	}
	if abstract.ReviewCount != 2 || abstract.AverageScore != 11.5 {
		t.Errorf("count = %d average = %v, want 2 and 11.5", abstract.ReviewCount, abstract.AverageScore)
	}

	queue, err := model.ListReviewQueue(ctx, db, reviewerB.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(queue) != 1 || queue[0].Review == nil || queue[0].Review.Total != 9 {
		t.Errorf("unexpected queue %+v", queue)
	}

	// case: decision
	if _, err := model.DecideAbstract(ctx, db, event.ID, abstract.ID, model.ABSTRACT_STATUS_UNDER_REVIEW, "", time.Now()); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}
	decided, err := model.DecideAbstract(ctx, db, event.ID, abstract.ID, model.ABSTRACT_STATUS_ACCEPTED, "  oral slot ", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if decided.Status != model.ABSTRACT_STATUS_ACCEPTED || decided.DecisionNote != "oral slot" || decided.DecidedAt == nil {
		t.Errorf("unexpected decision %+v", decided)
	}

	// case: decided abstracts can't be reviewed
	if _, err := model.SubmitReview(ctx, db, event.ID, &model.AbstractReview{
		AbstractID:     abstract.ID,
		ReviewerID:     reviewerB.ID,
		Scores:         map[string]int{"novelty": 5},
		Recommendation: model.RECOMMENDATION_ACCEPT,
	}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	abstracts, total, err := model.ListAbstracts(ctx, db, event.ID, model.AbstractFilter{ReviewerID: reviewerA.ID}, model.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || abstracts[0].ID != abstract.ID {
		t.Errorf("reviewer filter returned %d", total)
	}
}
