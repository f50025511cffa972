package model

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type AbstractStatus string

const (
	ABSTRACT_STATUS_SUBMITTED          = AbstractStatus("submitted")
	ABSTRACT_STATUS_UNDER_REVIEW       = AbstractStatus("under_review")
	ABSTRACT_STATUS_ACCEPTED           = AbstractStatus("accepted")
	ABSTRACT_STATUS_REJECTED           = AbstractStatus("rejected")
	ABSTRACT_STATUS_REVISION_REQUESTED = AbstractStatus("revision_requested")
	ABSTRACT_STATUS_WITHDRAWN          = AbstractStatus("withdrawn")
)

// IsDecision reports whether s is a status an organizer may decide on.
func (s AbstractStatus) IsDecision() bool {
	switch s {
	case ABSTRACT_STATUS_ACCEPTED, ABSTRACT_STATUS_REJECTED,
		ABSTRACT_STATUS_REVISION_REQUESTED, ABSTRACT_STATUS_WITHDRAWN:
		return true
	}
	return false
}

type PresentationType string

const (
	PRESENTATION_TYPE_ORAL   = PresentationType("oral")
	PRESENTATION_TYPE_POSTER = PresentationType("poster")
	PRESENTATION_TYPE_EITHER = PresentationType("either")
)

type Abstract struct {
	bun.BaseModel `bun:"table:abstracts"`

	ID               string           `bun:"id,pk" json:"id"`
	EventID          string           `bun:"event_id,notnull,unique:abstract_event_number" json:"event_id"`
	AbstractNumber   string           `bun:"abstract_number,notnull,unique:abstract_event_number" json:"abstract_number"`
	Title            string           `bun:"title,notnull" json:"title"`
	Body             string           `bun:"body,notnull" json:"body"`
	Authors          []string         `bun:"authors" json:"authors"`
	PresentingAuthor string           `bun:"presenting_author,notnull" json:"presenting_author"`
	Email            string           `bun:"email,notnull" json:"email"`
	Phone            string           `bun:"phone" json:"phone"`
	Category         string           `bun:"category" json:"category"`
	Track            string           `bun:"track" json:"track"`
	Keywords         []string         `bun:"keywords" json:"keywords"`
	Status           AbstractStatus   `bun:"status,notnull,type:varchar" json:"status"`
	PresentationType PresentationType `bun:"presentation_type,notnull,type:varchar" json:"presentation_type"`
	DecisionNote     string           `bun:"decision_note" json:"decision_note"`
	AverageScore     float64          `bun:"average_score,notnull" json:"average_score"`
	ReviewCount      int              `bun:"review_count,notnull" json:"review_count"`

	SubmittedAt time.Time  `bun:"submitted_at,notnull" json:"submitted_at"`
	DecidedAt   *time.Time `bun:"decided_at" json:"decided_at,omitempty"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Abstract) Variables() map[string]string {
	return map[string]string{
		"name":              a.PresentingAuthor,
		"presenting_author": a.PresentingAuthor,
		"email":             a.Email,
		"abstract_number":   a.AbstractNumber,
		"abstract_title":    a.Title,
		"status":            strings.ReplaceAll(string(a.Status), "_", " "),
		"abstract_status":   strings.ReplaceAll(string(a.Status), "_", " "),
		"decision_note":     a.DecisionNote,
		"presentation_type": string(a.PresentationType),
	}
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

type AbstractInput struct {
	Title            string
	Body             string
	Authors          []string
	PresentingAuthor string
	Email            string
	Phone            string
	Category         string
	Track            string
	Keywords         []string
	PresentationType PresentationType
}

// SubmitAbstract stores a new abstract, numbering it ABS-0001, ABS-0002...
// per event. The deadline and word limit are checked against the event.
func SubmitAbstract(ctx context.Context, db *bun.DB, eventID string, in AbstractInput, now time.Time) (*Abstract, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.PresentingAuthor = strings.TrimSpace(in.PresentingAuthor)
	in.Email = NormalizeEmail(in.Email)
	if in.PresentationType == "" {
		in.PresentationType = PRESENTATION_TYPE_EITHER
	}
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("SubmitAbstract: %w: title is required", ErrInvalid)
	case strings.TrimSpace(in.Body) == "":
		return nil, fmt.Errorf("SubmitAbstract: %w: body is required", ErrInvalid)
	case in.PresentingAuthor == "":
		return nil, fmt.Errorf("SubmitAbstract: %w: presenting author is required", ErrInvalid)
	case !strings.Contains(in.Email, "@"):
		return nil, fmt.Errorf("SubmitAbstract: %w: a valid email is required", ErrInvalid)
	}
	switch in.PresentationType {
	case PRESENTATION_TYPE_ORAL, PRESENTATION_TYPE_POSTER, PRESENTATION_TYPE_EITHER:
	default:
		return nil, fmt.Errorf("SubmitAbstract: %w: unknown presentation type %q", ErrInvalid, in.PresentationType)
	}

	abstract := new(Abstract)
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := GetEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if !event.AcceptsAbstracts(now) {
			return ErrSubmissionClosed
		}
		if limit := event.AbstractWordLimit; limit > 0 {
			if n := WordCount(in.Body); n > limit {
				return fmt.Errorf("%w: abstract has %d words, the limit is %d", ErrInvalid, n, limit)
			}
		}
		seq, err := nextEventSeq(ctx, tx, eventID, "abstract_seq")
		if err != nil {
			return err
		}
		authors := in.Authors
		if len(authors) == 0 {
			authors = []string{in.PresentingAuthor}
		}
		keywords := in.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		*abstract = Abstract{
			ID:               newID(),
			EventID:          eventID,
			AbstractNumber:   fmt.Sprintf("ABS-%04d", seq),
			Title:            in.Title,
			Body:             strings.TrimSpace(in.Body),
			Authors:          authors,
			PresentingAuthor: in.PresentingAuthor,
			Email:            in.Email,
			Phone:            strings.TrimSpace(in.Phone),
			Category:         strings.TrimSpace(in.Category),
			Track:            strings.TrimSpace(in.Track),
			Keywords:         keywords,
			Status:           ABSTRACT_STATUS_SUBMITTED,
			PresentationType: in.PresentationType,
			SubmittedAt:      now.UTC(),
			UpdatedAt:        now.UTC(),
		}
		_, err = tx.NewInsert().
			Model(abstract).
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("SubmitAbstract: %w", err)
	}
	return abstract, nil
}

func GetAbstract(ctx context.Context, db bun.IDB, eventID, id string) (*Abstract, error) {
	abstract := new(Abstract)
	if err := db.NewSelect().
		Model(abstract).
		Where("id = ?", id).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx); err != nil {
		return nil, notFound(err, "abstract")
	}
	return abstract, nil
}

type AbstractFilter struct {
	Status     AbstractStatus
	Category   string
	Track      string
	Query      string
	ReviewerID string
}

func (f AbstractFilter) apply(db bun.IDB, q *bun.SelectQuery) *bun.SelectQuery {
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Track != "" {
		q = q.Where("track = ?", f.Track)
	}
	if f.ReviewerID != "" {
		q = q.Where("id IN (?)", db.NewSelect().
			Model((*ReviewerAssignment)(nil)).
			Column("abstract_id").
			Where("reviewer_id = ?", f.ReviewerID))
	}
	if query := strings.ToLower(strings.TrimSpace(f.Query)); query != "" {
		like := "%" + query + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(title) LIKE ?", like).
				WhereOr("LOWER(presenting_author) LIKE ?", like).
				WhereOr("LOWER(abstract_number) LIKE ?", like)
		})
	}
	return q
}

func ListAbstracts(ctx context.Context, db bun.IDB, eventID string, filter AbstractFilter, opts ListOptions) ([]Abstract, int, error) {
	opts = opts.Normalize()
	abstracts := make([]Abstract, 0)
	q := db.NewSelect().
		Model(&abstracts).
		Where("event_id = ?", eventID)
	total, err := filter.apply(db, q).
		Order("abstract_number ASC").
		Limit(opts.Limit).
		Offset(opts.Offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("ListAbstracts: %w", err)
	}
	return abstracts, total, nil
}

func AllAbstracts(ctx context.Context, db bun.IDB, eventID string, filter AbstractFilter) ([]Abstract, error) {
	abstracts := make([]Abstract, 0)
	q := db.NewSelect().
		Model(&abstracts).
		Where("event_id = ?", eventID)
	if err := filter.apply(db, q).
		Order("abstract_number ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("AllAbstracts: %w", err)
	}
	return abstracts, nil
}

type ReviewerAssignment struct {
	bun.BaseModel `bun:"table:reviewer_assignments"`

	AbstractID string    `bun:"abstract_id,pk" json:"abstract_id"`
	ReviewerID string    `bun:"reviewer_id,pk" json:"reviewer_id"`
	AssignedAt time.Time `bun:"assigned_at,notnull" json:"assigned_at"`
}

// AssignReviewers adds reviewers to an abstract. Reviewers must be active
// members whose role can review; existing assignments are kept.
func AssignReviewers(ctx context.Context, db *bun.DB, eventID, abstractID string, reviewerIDs []string, canReview func(Role) bool) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := GetAbstract(ctx, tx, eventID, abstractID); err != nil {
			return fmt.Errorf("AssignReviewers: %w", err)
		}
		now := time.Now().UTC()
		for _, reviewerID := range reviewerIDs {
			member, err := GetTeamMember(ctx, tx, reviewerID)
			if err != nil {
				return fmt.Errorf("AssignReviewers: %w", err)
			}
			if !member.Active || !canReview(member.Role) {
				return fmt.Errorf("AssignReviewers: %w: %s can't review abstracts", ErrInvalid, member.Email)
			}
			if _, err := tx.NewInsert().
				Model(&ReviewerAssignment{
					AbstractID: abstractID,
					ReviewerID: reviewerID,
					AssignedAt: now,
				}).
				On("CONFLICT DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("AssignReviewers: %w", err)
			}
		}
		return nil
	})
}

func IsReviewerAssigned(ctx context.Context, db bun.IDB, abstractID, reviewerID string) (bool, error) {
	ok, err := db.NewSelect().
		Model((*ReviewerAssignment)(nil)).
		Where("abstract_id = ?", abstractID).
		Where("reviewer_id = ?", reviewerID).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("IsReviewerAssigned: %w", err)
	}
	return ok, nil
}

type Recommendation string

const (
	RECOMMENDATION_ACCEPT = Recommendation("accept")
	RECOMMENDATION_REJECT = Recommendation("reject")
	RECOMMENDATION_REVISE = Recommendation("revise")
)

type AbstractReview struct {
	bun.BaseModel `bun:"table:abstract_reviews"`

	ID             string         `bun:"id,pk" json:"id"`
	AbstractID     string         `bun:"abstract_id,notnull,unique:review_abstract_reviewer" json:"abstract_id"`
	ReviewerID     string         `bun:"reviewer_id,notnull,unique:review_abstract_reviewer" json:"reviewer_id"`
	Scores         map[string]int `bun:"scores" json:"scores"`
	Total          int            `bun:"total,notnull" json:"total"`
	Recommendation Recommendation `bun:"recommendation,notnull,type:varchar" json:"recommendation"`
	Comments       string         `bun:"comments" json:"comments"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (r *AbstractReview) validate() error {
	if len(r.Scores) == 0 {
		return fmt.Errorf("%w: at least one score is required", ErrInvalid)
	}
	r.Total = 0
	for criterion, score := range r.Scores {
		if score < 1 || score > 10 {
			return fmt.Errorf("%w: score for %q must be between 1 and 10", ErrInvalid, criterion)
		}
		r.Total += score
	}
	switch r.Recommendation {
	case RECOMMENDATION_ACCEPT, RECOMMENDATION_REJECT, RECOMMENDATION_REVISE:
	default:
		return fmt.Errorf("%w: unknown recommendation %q", ErrInvalid, r.Recommendation)
	}
	return nil
}

// SubmitReview stores the reviewer's review (replacing an earlier one),
// moves a submitted abstract to under_review and recomputes the average
// of the review totals.
func SubmitReview(ctx context.Context, db *bun.DB, eventID string, review *AbstractReview) (*Abstract, error) {
	if err := review.validate(); err != nil {
		return nil, fmt.Errorf("SubmitReview: %w", err)
	}
	var abstract *Abstract
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if abstract, err = GetAbstract(ctx, tx, eventID, review.AbstractID); err != nil {
			return err
		}
		switch abstract.Status {
		case ABSTRACT_STATUS_SUBMITTED, ABSTRACT_STATUS_UNDER_REVIEW:
		default:
			return fmt.Errorf("%w: abstract is %s", ErrConflict, abstract.Status)
		}

		now := time.Now().UTC()
		review.UpdatedAt = now
		if review.ID == "" {
			review.ID = newID()
		}
		if review.CreatedAt.IsZero() {
			review.CreatedAt = now
		}
		if _, err := tx.NewInsert().
			Model(review).
			On("CONFLICT (abstract_id, reviewer_id) DO UPDATE").
			Set("scores = EXCLUDED.scores").
			Set("total = EXCLUDED.total").
			Set("recommendation = EXCLUDED.recommendation").
			Set("comments = EXCLUDED.comments").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}

		var stats struct {
			Count int
			Sum   int64
		}
		if err := tx.NewSelect().
			Model((*AbstractReview)(nil)).
			ColumnExpr("COUNT(*) AS count").
			ColumnExpr("COALESCE(SUM(total), 0) AS sum").
			Where("abstract_id = ?", abstract.ID).
			Scan(ctx, &stats.Count, &stats.Sum); err != nil {
			return err
		}
		abstract.ReviewCount = stats.Count
		abstract.AverageScore = 0
		if stats.Count > 0 {
			abstract.AverageScore = math.Round(float64(stats.Sum)/float64(stats.Count)*100) / 100
		}
		abstract.Status = ABSTRACT_STATUS_UNDER_REVIEW
		abstract.UpdatedAt = now
		_, err = tx.NewUpdate().
			Model(abstract).
			Column("review_count", "average_score", "status", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("SubmitReview: %w", err)
	}
	return abstract, nil
}

func ListReviews(ctx context.Context, db bun.IDB, abstractID string) ([]AbstractReview, error) {
	reviews := make([]AbstractReview, 0)
	if err := db.NewSelect().
		Model(&reviews).
		Where("abstract_id = ?", abstractID).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListReviews: %w", err)
	}
	return reviews, nil
}

// ReviewQueueItem is an abstract assigned to a reviewer together with the
// reviewer's own review, when there is one.
type ReviewQueueItem struct {
	Abstract Abstract        `json:"abstract"`
	Review   *AbstractReview `json:"review,omitempty"`
}

// ListReviewQueue returns the abstracts assigned to reviewerID across all
// events, oldest first.
func ListReviewQueue(ctx context.Context, db bun.IDB, reviewerID string) ([]ReviewQueueItem, error) {
	abstracts := make([]Abstract, 0)
	if err := db.NewSelect().
		Model(&abstracts).
		Where("id IN (?)", db.NewSelect().
			Model((*ReviewerAssignment)(nil)).
			Column("abstract_id").
			Where("reviewer_id = ?", reviewerID)).
		Order("submitted_at ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListReviewQueue: %w", err)
	}
	reviews := make([]AbstractReview, 0)
	if err := db.NewSelect().
		Model(&reviews).
		Where("reviewer_id = ?", reviewerID).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("ListReviewQueue: %w", err)
	}
	byAbstract := make(map[string]*AbstractReview, len(reviews))
	for i := range reviews {
		byAbstract[reviews[i].AbstractID] = &reviews[i]
	}
	queue := make([]ReviewQueueItem, len(abstracts))
	for i, abstract := range abstracts {
		queue[i] = ReviewQueueItem{Abstract: abstract, Review: byAbstract[abstract.ID]}
	}
	return queue, nil
}

// DecideAbstract records the organizer decision.
func DecideAbstract(ctx context.Context, db bun.IDB, eventID, id string, status AbstractStatus, note string, now time.Time) (*Abstract, error) {
	if !status.IsDecision() {
		return nil, fmt.Errorf("DecideAbstract: %w: %q is not a decision", ErrInvalid, status)
	}
	abstract, err := GetAbstract(ctx, db, eventID, id)
	if err != nil {
		return nil, fmt.Errorf("DecideAbstract: %w", err)
	}
	if abstract.Status == ABSTRACT_STATUS_WITHDRAWN {
		return nil, fmt.Errorf("DecideAbstract: %w: abstract was withdrawn", ErrConflict)
	}
	now = now.UTC()
	abstract.Status = status
	abstract.DecisionNote = strings.TrimSpace(note)
	abstract.DecidedAt = &now
	abstract.UpdatedAt = now
	if _, err := db.NewUpdate().
		Model(abstract).
		Column("status", "decision_note", "decided_at", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("DecideAbstract: %w", err)
	}
	return abstract, nil
}
