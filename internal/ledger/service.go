package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"careerquest/internal/metrics"
	"careerquest/internal/store"
)

// DefaultRatingLimit caps the leaderboard shown to non-admins.
const DefaultRatingLimit = 10

const generateAttempts = 5

// Service is the ledger engine. It keeps no state between calls; every
// mutation is one transaction on the shared pool.
type Service struct {
	db          *store.DB
	repo        *Repository
	log         *slog.Logger
	ratingLimit int
}

// NewService creates a service backed by db.
func NewService(db *store.DB, logger *slog.Logger, ratingLimit int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ratingLimit <= 0 {
		ratingLimit = DefaultRatingLimit
	}
	return &Service{db: db, repo: NewRepository(), log: logger, ratingLimit: ratingLimit}
}

// RegisterStudent creates the student with a zero balance. It returns false
// when the id is already registered; concurrent first contacts from the same
// id resolve through the primary key, never as a second row.
func (s *Service) RegisterStudent(ctx context.Context, in NewStudent) (bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == 0 || in.Name == "" {
		return false, fmt.Errorf("%w: student id and name required", ErrInvalid)
	}
	if utf8.RuneCountInString(in.Name) > MaxNameLength {
		return false, fmt.Errorf("%w: name longer than %d characters", ErrInvalid, MaxNameLength)
	}
	var created bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		existing, err := s.repo.GetStudent(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			created = false
			return nil
		}
		created, err = s.repo.InsertStudent(ctx, tx, in)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("register student %d: %w", in.ID, err)
	}
	if created {
		s.log.Info("student registered", "student_id", in.ID)
	}
	return created, nil
}

// GetStudent returns ErrNotFound for unknown ids.
func (s *Service) GetStudent(ctx context.Context, id int64) (Student, error) {
	var st *Student
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		st, err = s.repo.GetStudent(ctx, q, id)
		return err
	})
	if err != nil {
		return Student{}, fmt.Errorf("get student %d: %w", id, err)
	}
	if st == nil {
		return Student{}, ErrNotFound
	}
	return *st, nil
}

// UpdateStudentProfile changes course and/or faculty; nil leaves a field as is.
func (s *Service) UpdateStudentProfile(ctx context.Context, id int64, course, faculty *string) error {
	var ok bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		ok, err = s.repo.UpdateProfile(ctx, tx, id, course, faculty)
		return err
	})
	if err != nil {
		return fmt.Errorf("update student %d: %w", id, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// GetBalance returns ErrNotFound for unknown ids.
func (s *Service) GetBalance(ctx context.Context, id int64) (int, error) {
	var (
		balance int
		ok      bool
	)
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		balance, ok, err = s.repo.Balance(ctx, q, id)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get balance %d: %w", id, err)
	}
	if !ok {
		return 0, ErrNotFound
	}
	return balance, nil
}

// ListStudentIDs returns every registered student id, oldest registration first.
func (s *Service) ListStudentIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		ids, err = s.repo.ListStudentIDs(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return ids, nil
}

// GrantPoints redeems an income code for the student.
func (s *Service) GrantPoints(ctx context.Context, studentID int64, codeText string) (Redemption, error) {
	return s.redeem(ctx, studentID, codeText, true)
}

// SpendPoints redeems an outcome code, provided the balance covers it.
func (s *Service) SpendPoints(ctx context.Context, studentID int64, codeText string) (Redemption, error) {
	return s.redeem(ctx, studentID, codeText, false)
}

// redeem is the shared grant/spend path. The student row is locked for the
// whole transaction, so concurrent attempts by one student are serialized;
// the (user_id, code_id) primary key backs up the already-used check.
func (s *Service) redeem(ctx context.Context, studentID int64, codeText string, income bool) (Redemption, error) {
	kind := "spend"
	if income {
		kind = "grant"
	}
	text := NormalizeCode(codeText)

	var res Redemption
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		if text == "" {
			res = newRedemption(OutcomeCodeNotFound, text)
			return nil
		}
		code, err := s.repo.FindCode(ctx, tx, text)
		if err != nil {
			return err
		}
		switch {
		case code == nil:
			res = newRedemption(OutcomeCodeNotFound, text)
			return nil
		case !code.Active:
			res = newRedemption(OutcomeCodeInactive, text)
			return nil
		case code.IsIncome != income:
			res = newRedemption(OutcomeWrongDirection, text)
			return nil
		}

		balance, registered, err := s.repo.LockBalance(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !registered {
			res = newRedemption(OutcomeNotRegistered, text)
			return nil
		}
		used, err := s.repo.Redeemed(ctx, tx, studentID, code.ID)
		if err != nil {
			return err
		}
		if used {
			res = newRedemption(OutcomeAlreadyUsed, text)
			return nil
		}
		if !income && balance < code.Points {
			res = newRedemption(OutcomeInsufficientBalance, text)
			res.Balance = balance
			return nil
		}

		inserted, err := s.repo.InsertRedemption(ctx, tx, studentID, code.ID)
		if err != nil {
			return err
		}
		if !inserted {
			res = newRedemption(OutcomeAlreadyUsed, text)
			return nil
		}
		delta := code.Points
		if !income {
			delta = -delta
		}
		newBalance, err := s.repo.AdjustBalance(ctx, tx, studentID, delta)
		if err != nil {
			return err
		}
		res = newRedemption(OutcomeAccepted, text)
		res.Points = code.Points
		res.Balance = newBalance
		return nil
	})
	if err != nil {
		s.log.Error("redemption failed", "kind", kind, "student_id", studentID, "code", text, "err", err)
		return Redemption{}, fmt.Errorf("%s points: %w", kind, err)
	}

	metrics.Redemptions.WithLabelValues(kind, res.Outcome.String()).Inc()
	if res.Outcome.Rejected() {
		s.log.Debug("redemption rejected", "kind", kind, "student_id", studentID, "code", text, "outcome", res.Outcome.String())
	} else {
		s.log.Info("redemption accepted", "kind", kind, "student_id", studentID, "code", text, "points", res.Points, "balance", res.Balance)
	}
	return res, nil
}

// GetRating returns the leaderboard for requesterID. Non-admins get at most
// the configured cap (a smaller limit is honoured). Admins get everyone when
// limit is nil, otherwise exactly the limit they asked for.
func (s *Service) GetRating(ctx context.Context, requesterID int64, limit *int) ([]RatingEntry, error) {
	admin, err := s.IsAdmin(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	n := s.ratingLimit
	switch {
	case admin && limit == nil:
		n = 0
	case admin:
		n = *limit
	case limit != nil && *limit > 0 && *limit < n:
		n = *limit
	}

	var res []RatingEntry
	err = s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		res, err = s.repo.Rating(ctx, q, n)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rating: %w", err)
	}
	return res, nil
}

// Leaderboard returns the top limit students for operators; limit <= 0
// returns everyone.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]RatingEntry, error) {
	var res []RatingEntry
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		res, err = s.repo.Rating(ctx, q, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("rating: %w", err)
	}
	return res, nil
}

// AddAdmin grants admin rights; adding an existing admin is a silent no-op.
func (s *Service) AddAdmin(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: admin id must be positive", ErrInvalid)
	}
	var added bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		added, err = s.repo.InsertAdmin(ctx, tx, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("add admin %d: %w", userID, err)
	}
	if added {
		s.log.Info("admin added", "user_id", userID)
	}
	return nil
}

// EnsureAdmins adds every id in ids, so a fresh deployment has someone who
// can run the privileged commands.
func (s *Service) EnsureAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.AddAdmin(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// IsAdmin checks admin membership.
func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		ok, err = s.repo.AdminExists(ctx, q, userID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check admin %d: %w", userID, err)
	}
	return ok, nil
}

// RequireAdmin returns ErrForbidden unless userID is an admin.
func (s *Service) RequireAdmin(ctx context.Context, userID int64) error {
	ok, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// AddEvent creates an event with a unique name.
func (s *Service) AddEvent(ctx context.Context, name string) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, fmt.Errorf("%w: event name required", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Event{}, fmt.Errorf("%w: event name longer than %d characters", ErrInvalid, MaxNameLength)
	}
	var evt Event
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		evt, err = s.repo.InsertEvent(ctx, tx, name)
		return err
	})
	if store.IsUniqueViolation(err) {
		return Event{}, ErrDuplicate
	}
	if err != nil {
		return Event{}, fmt.Errorf("add event: %w", err)
	}
	s.log.Info("event added", "event_id", evt.ID, "name", evt.Name)
	return evt, nil
}

// ListEvents returns events newest first.
func (s *Service) ListEvents(ctx context.Context) ([]Event, error) {
	var events []Event
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		events, err = s.repo.ListEvents(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// GetEvent returns ErrNotFound for unknown ids.
func (s *Service) GetEvent(ctx context.Context, id int64) (Event, error) {
	var evt *Event
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		evt, err = s.repo.GetEvent(ctx, q, id)
		return err
	})
	if err != nil {
		return Event{}, fmt.Errorf("get event %d: %w", id, err)
	}
	if evt == nil {
		return Event{}, ErrNotFound
	}
	return *evt, nil
}

// DeleteEvent removes the event's codes and then the event in one transaction.
// It returns how many codes went with it.
func (s *Service) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	var removed int64
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		removed, err = s.repo.DeleteEventCodes(ctx, tx, id)
		if err != nil {
			return err
		}
		ok, err := s.repo.DeleteEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete event %d: %w", id, err)
	}
	s.log.Info("event deleted", "event_id", id, "codes_removed", removed)
	return removed, nil
}

// AddCodeToEvent attaches a code to an event. An existing code text, in any
// case, yields ErrDuplicate and the stored code is left untouched.
func (s *Service) AddCodeToEvent(ctx context.Context, eventID int64, codeText string, points int, isIncome bool) (Code, error) {
	text := NormalizeCode(codeText)
	if text == "" || len(text) > MaxCodeLength {
		return Code{}, fmt.Errorf("%w: code must be 1-%d characters", ErrInvalid, MaxCodeLength)
	}
	if points <= 0 {
		return Code{}, fmt.Errorf("%w: points must be positive", ErrInvalid)
	}
	var code *Code
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		code, err = s.repo.InsertCode(ctx, tx, eventID, text, points, isIncome)
		return err
	})
	if store.IsForeignKeyViolation(err) {
		return Code{}, ErrNotFound
	}
	if err != nil {
		return Code{}, fmt.Errorf("add code: %w", err)
	}
	if code == nil {
		return Code{}, ErrDuplicate
	}
	s.log.Info("code added", "event_id", eventID, "code", code.Text, "points", code.Points, "income", code.IsIncome)
	return *code, nil
}

// GenerateCode attaches a freshly generated code, retrying on collisions.
func (s *Service) GenerateCode(ctx context.Context, eventID int64, points int, isIncome bool) (Code, error) {
	for attempt := 0; attempt < generateAttempts; attempt++ {
		text, err := newCodeText()
		if err != nil {
			return Code{}, err
		}
		exists, err := s.CodeExists(ctx, text)
		if err != nil {
			return Code{}, err
		}
		if exists {
			continue
		}
		code, err := s.AddCodeToEvent(ctx, eventID, text, points, isIncome)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		return code, err
	}
	return Code{}, fmt.Errorf("generate code: no free code after %d attempts", generateAttempts)
}

// DeleteCode removes a code and its redemption records.
func (s *Service) DeleteCode(ctx context.Context, codeText string) error {
	text := NormalizeCode(codeText)
	var ok bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		ok, err = s.repo.DeleteCode(ctx, tx, text)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	s.log.Info("code deleted", "code", text)
	return nil
}

// SetCodeActive enables or disables redemption of a code.
func (s *Service) SetCodeActive(ctx context.Context, codeText string, active bool) error {
	text := NormalizeCode(codeText)
	var ok bool
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		ok, err = s.repo.SetCodeActive(ctx, tx, text, active)
		return err
	})
	if err != nil {
		return fmt.Errorf("set code active: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ListCodeUsage lists codes with usage counts; eventID nil means all events.
func (s *Service) ListCodeUsage(ctx context.Context, eventID *int64) ([]CodeUsage, error) {
	var res []CodeUsage
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		res, err = s.repo.ListCodeUsage(ctx, q, eventID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return res, nil
}

// CodeExists reports whether a code text (any case) is taken.
func (s *Service) CodeExists(ctx context.Context, codeText string) (bool, error) {
	text := NormalizeCode(codeText)
	var exists bool
	err := s.db.WithConn(ctx, func(q store.Querier) error {
		var err error
		exists, err = s.repo.CodeExists(ctx, q, text)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return exists, nil
}
