package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

type Role string

const (
	ROLE_OWNER       = Role("owner")
	ROLE_ADMIN       = Role("admin")
	ROLE_COORDINATOR = Role("coordinator")
	ROLE_REVIEWER    = Role("reviewer")
	ROLE_VIEWER      = Role("viewer")
)

func (r Role) Valid() bool {
	switch r {
	case ROLE_OWNER, ROLE_ADMIN, ROLE_COORDINATOR, ROLE_REVIEWER, ROLE_VIEWER:
		return true
	}
	return false
}

type TeamMember struct {
	bun.BaseModel `bun:"table:team_members"`

	ID           string `bun:"id,pk" json:"id"`
	Email        string `bun:"email,notnull,unique" json:"email"`
	Name         string `bun:"name,notnull" json:"name"`
	Role         Role   `bun:"role,notnull,type:varchar" json:"role"`
	PasswordHash string `bun:"password_hash,notnull" json:"-"`

	// TOTPSecret is set once the member verified a code; PendingTOTPSecret
	// holds a freshly generated secret until then.
	TOTPSecret        string `bun:"totp_secret" json:"-"`
	PendingTOTPSecret string `bun:"pending_totp_secret" json:"-"`

	Active      bool       `bun:"active,notnull" json:"active"`
	LastLoginAt *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (m *TeamMember) HasTOTP() bool {
	return m.TOTPSecret != ""
}

func (m *TeamMember) SetPassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalid)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("(*TeamMember).SetPassword: %w", err)
	}
	m.PasswordHash = string(hash)
	return nil
}

func (m *TeamMember) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password)) == nil
}

func (m *TeamMember) validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: member id is blank", ErrInvalid)
	case m.Email == "" || !strings.Contains(m.Email, "@"):
		return fmt.Errorf("%w: a valid email is required", ErrInvalid)
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalid)
	case !m.Role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalid, m.Role)
	case m.PasswordHash == "":
		return fmt.Errorf("%w: password is required", ErrInvalid)
	}
	return nil
}

func (m *TeamMember) Upsert(ctx context.Context, db bun.IDB) error {
	m.Email = NormalizeEmail(m.Email)
	if err := m.validate(); err != nil {
		return fmt.Errorf("(*TeamMember).Upsert: %w", err)
	}
	emailTaken, err := db.NewSelect().
		Model((*TeamMember)(nil)).
		Where("email = ?", m.Email).
		Where("id != ?", m.ID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("(*TeamMember).Upsert: %w", err)
	}
	if emailTaken {
		return fmt.Errorf("(*TeamMember).Upsert: %w: email %q is taken", ErrConflict, m.Email)
	}

	now := time.Now().UTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if _, err := db.NewInsert().
		Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("role = EXCLUDED.role").
		Set("password_hash = EXCLUDED.password_hash").
		Set("totp_secret = EXCLUDED.totp_secret").
		Set("pending_totp_secret = EXCLUDED.pending_totp_secret").
		Set("active = EXCLUDED.active").
		Set("last_login_at = EXCLUDED.last_login_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx); err != nil {
		return fmt.Errorf("(*TeamMember).Upsert: %w", err)
	}
	return nil
}

func GetTeamMember(ctx context.Context, db bun.IDB, id string) (*TeamMember, error) {
	member := new(TeamMember)
	if err := db.NewSelect().
		Model(member).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "team member")
	}
	return member, nil
}

func GetTeamMemberByEmail(ctx context.Context, db bun.IDB, email string) (*TeamMember, error) {
	member := new(TeamMember)
	if err := db.NewSelect().
		Model(member).
		Where("email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "team member")
	}
	return member, nil
}

func ListTeamMembers(ctx context.Context, db bun.IDB, role Role) ([]TeamMember, error) {
	members := make([]TeamMember, 0)
	q := db.NewSelect().
		Model(&members).
		Order("created_at ASC")
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListTeamMembers: %w", err)
	}
	return members, nil
}

func CountTeamMembers(ctx context.Context, db bun.IDB) (int, error) {
	n, err := db.NewSelect().
		Model((*TeamMember)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("CountTeamMembers: %w", err)
	}
	return n, nil
}

// ensureAnotherOwner fails when id is the only active owner left.
func ensureAnotherOwner(ctx context.Context, db bun.IDB, id string) error {
	others, err := db.NewSelect().
		Model((*TeamMember)(nil)).
		Where("role = ?", ROLE_OWNER).
		Where("active = ?", true).
		Where("id != ?", id).
		Count(ctx)
	if err != nil {
		return err
	}
	if others == 0 {
		return fmt.Errorf("%w: the last owner can't be removed or demoted", ErrConflict)
	}
	return nil
}

type TeamMemberUpdate struct {
	Name     *string
	Role     *Role
	Active   *bool
	Password *string
}

// UpdateTeamMember applies upd, refusing to demote or deactivate the last
// active owner.
func UpdateTeamMember(ctx context.Context, db *bun.DB, id string, upd TeamMemberUpdate) (*TeamMember, error) {
	var member *TeamMember
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if member, err = GetTeamMember(ctx, tx, id); err != nil {
			return err
		}
		losesOwner := member.Role == ROLE_OWNER && member.Active &&
			((upd.Role != nil && *upd.Role != ROLE_OWNER) || (upd.Active != nil && !*upd.Active))
		if losesOwner {
			if err := ensureAnotherOwner(ctx, tx, id); err != nil {
				return err
			}
		}
		if upd.Name != nil {
			member.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Role != nil {
			member.Role = *upd.Role
		}
		if upd.Active != nil {
			member.Active = *upd.Active
		}
		if upd.Password != nil {
			if err := member.SetPassword(*upd.Password); err != nil {
				return err
			}
		}
		return member.Upsert(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("UpdateTeamMember: %w", err)
	}
	return member, nil
}

func DeleteTeamMember(ctx context.Context, db *bun.DB, id string) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		member, err := GetTeamMember(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("DeleteTeamMember: %w", err)
		}
		if member.Role == ROLE_OWNER && member.Active {
			if err := ensureAnotherOwner(ctx, tx, id); err != nil {
				return fmt.Errorf("DeleteTeamMember: %w", err)
			}
		}
		if _, err := tx.NewDelete().
			Model((*ReviewerAssignment)(nil)).
			Where("reviewer_id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("DeleteTeamMember: %w", err)
		}
		if _, err := tx.NewDelete().
			Model((*TeamMember)(nil)).
			Where("id = ?", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("DeleteTeamMember: %w", err)
		}
		return nil
	})
}

// SeedOwner creates the first owner when the team is empty. It returns
// false when members already exist.
func SeedOwner(ctx context.Context, db bun.IDB, email, password string) (bool, error) {
	n, err := CountTeamMembers(ctx, db)
	if err != nil {
		return false, fmt.Errorf("SeedOwner: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	owner := &TeamMember{
		ID:     newID(),
		Email:  email,
		Name:   "Owner",
		Role:   ROLE_OWNER,
		Active: true,
	}
	if err := owner.SetPassword(password); err != nil {
		return false, fmt.Errorf("SeedOwner: %w", err)
	}
	if err := owner.Upsert(ctx, db); err != nil {
		return false, fmt.Errorf("SeedOwner: %w", err)
	}
	return true, nil
}

func TouchLastLogin(ctx context.Context, db bun.IDB, member *TeamMember, now time.Time) error {
	now = now.UTC()
	if _, err := db.NewUpdate().
		Model((*TeamMember)(nil)).
		Set("last_login_at = ?", now).
		Where("id = ?", member.ID).
		Exec(ctx); err != nil {
		return fmt.Errorf("TouchLastLogin: %w", err)
	}
	member.LastLoginAt = &now
	return nil
}
