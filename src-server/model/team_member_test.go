package model_test

import (
	"context"
	"errors"
	"testing"

	"confdesk/src-server/model"

	"github.com/google/uuid"
)

func TestTeamMembers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// case: seed only once
	seeded, err := model.SeedOwner(ctx, db, "Owner@Example.com", "correct horse")
	if err != nil || !seeded {
		t.Fatalf("seed: %v %v", seeded, err)
	}
	seeded, err = model.SeedOwner(ctx, db, "other@example.com", "correct horse")
	if err != nil || seeded {
		t.Fatalf("second seed should be skipped: %v %v", seeded, err)
	}
	owner, err := model.GetTeamMemberByEmail(ctx, db, "owner@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !owner.CheckPassword("correct horse") || owner.CheckPassword("wrong") {
		t.Error("password check is broken")
	}

	// case: duplicate email
	dup := &model.TeamMember{ID: uuid.NewString(), Email: "owner@example.com", Name: "Dup", Role: model.ROLE_ADMIN, Active: true}
	if err := dup.SetPassword("password123"); err != nil {
		t.Fatal(err)
	}
	if err := dup.Upsert(ctx, db); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}

	// case: short password
	if err := dup.SetPassword("short"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("expected invalid, got %v", err)
	}

	// case: last owner can't be demoted or deleted
	viewer := model.ROLE_VIEWER
	if _, err := model.UpdateTeamMember(ctx, db, owner.ID, model.TeamMemberUpdate{Role: &viewer}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict demoting last owner, got %v", err)
	}
	if err := model.DeleteTeamMember(ctx, db, owner.ID); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict deleting last owner, got %v", err)
	}
	inactive := false
	if _, err := model.UpdateTeamMember(ctx, db, owner.ID, model.TeamMemberUpdate{Active: &inactive}); !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected conflict deactivating last owner, got %v", err)
	}

	// case: with a second owner the first can step down
	second := &model.TeamMember{ID: uuid.NewString(), Email: "second@example.com", Name: "Second", Role: model.ROLE_OWNER, Active: true}
	if err := second.SetPassword("password123"); err != nil {
		t.Fatal(err)
	}
	if err := second.Upsert(ctx, db); err != nil {
		t.Fatal(err)
	}
	updated, err := model.UpdateTeamMember(ctx, db, owner.ID, model.TeamMemberUpdate{Role: &viewer})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Role != model.ROLE_VIEWER {
		t.Errorf("role = %s", updated.Role)
	}
	if err := model.DeleteTeamMember(ctx, db, owner.ID); err != nil {
		t.Fatal(err)
	}
	members, err := model.ListTeamMembers(ctx, db, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].ID != second.ID {
		t.Errorf("unexpected members %+v", members)
	}
}
