package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"careerquest/internal/store"
)

// Repository holds the SQL for the ledger tables. Every method runs on the
// Querier it is given so callers decide the transaction boundary.
type Repository struct{}

// NewRepository creates a repo.
func NewRepository() *Repository {
	return &Repository{}
}

const studentColumns = `id, name, username, course, faculty, balance, registered_at`

func scanStudent(row pgx.Row) (*Student, error) {
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Username, &s.Course, &s.Faculty, &s.Balance, &s.RegisteredAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// InsertStudent adds a student with a zero balance. It reports false when the id already exists.
func (r *Repository) InsertStudent(ctx context.Context, q store.Querier, s NewStudent) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO students (id, name, username, course, faculty, balance)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.Name, s.Username, s.Course, s.Faculty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GetStudent returns nil when the student is not registered.
func (r *Repository) GetStudent(ctx context.Context, q store.Querier, id int64) (*Student, error) {
	return scanStudent(q.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// UpdateProfile overwrites course and faculty.
func (r *Repository) UpdateProfile(ctx context.Context, q store.Querier, id int64, course, faculty *string) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE students
		SET course = COALESCE($2, course), faculty = COALESCE($3, faculty)
		WHERE id = $1
	`, id, course, faculty)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// LockBalance reads a student's balance and holds the row lock until the transaction ends.
func (r *Repository) LockBalance(ctx context.Context, tx pgx.Tx, id int64) (int, bool, error) {
	var balance int
	err := tx.QueryRow(ctx, `SELECT balance FROM students WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// AdjustBalance adds delta (negative to spend) and returns the new balance.
func (r *Repository) AdjustBalance(ctx context.Context, tx pgx.Tx, id int64, delta int) (int, error) {
	var balance int
	err := tx.QueryRow(ctx, `
		UPDATE students SET balance = balance + $2
		WHERE id = $1
		RETURNING balance
	`, id, delta).Scan(&balance)
	return balance, err
}

// Balance returns the current balance without locking.
func (r *Repository) Balance(ctx context.Context, q store.Querier, id int64) (int, bool, error) {
	var balance int
	err := q.QueryRow(ctx, `SELECT balance FROM students WHERE id = $1`, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return balance, true, nil
}

// ListStudentIDs returns every registered student id.
func (r *Repository) ListStudentIDs(ctx context.Context, q store.Querier) ([]int64, error) {
	rows, err := q.Query(ctx, `SELECT id FROM students ORDER BY registered_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Rating returns students by balance, highest first. limit <= 0 means no limit.
func (r *Repository) Rating(ctx context.Context, q store.Querier, limit int) ([]RatingEntry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := q.Query(ctx, `
		SELECT name, balance
		FROM students
		ORDER BY balance DESC, registered_at, id
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RatingEntry
	for rows.Next() {
		e := RatingEntry{Position: len(res) + 1}
		if err := rows.Scan(&e.Name, &e.Balance); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// InsertAdmin is idempotent.
func (r *Repository) InsertAdmin(ctx context.Context, q store.Querier, userID int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO admins (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AdminExists checks admin membership.
func (r *Repository) AdminExists(ctx context.Context, q store.Querier, userID int64) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE user_id = $1)`, userID).Scan(&exists)
	return exists, err
}

// InsertEvent creates an event; a taken name surfaces as a unique violation.
func (r *Repository) InsertEvent(ctx context.Context, q store.Querier, name string) (Event, error) {
	evt := Event{Name: name}
	err := q.QueryRow(ctx, `
		INSERT INTO events (name) VALUES ($1)
		RETURNING id, created_at
	`, name).Scan(&evt.ID, &evt.CreatedAt)
	return evt, err
}

// ListEvents returns events newest first.
func (r *Repository) ListEvents(ctx context.Context, q store.Querier) ([]Event, error) {
	rows, err := q.Query(ctx, `SELECT id, name, created_at FROM events ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetEvent returns nil when the event does not exist.
func (r *Repository) GetEvent(ctx context.Context, q store.Querier, id int64) (*Event, error) {
	var e Event
	err := q.QueryRow(ctx, `SELECT id, name, created_at FROM events WHERE id = $1`, id).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// DeleteEventCodes removes every code attached to an event.
func (r *Repository) DeleteEventCodes(ctx context.Context, q store.Querier, eventID int64) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM codes WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteEvent removes the event row itself.
func (r *Repository) DeleteEvent(ctx context.Context, q store.Querier, id int64) (bool, error) {
	tag, err := q.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const codeColumns = `id, event_id, code, points, is_income, active, created_at`

func scanCode(row pgx.Row) (*Code, error) {
	var c Code
	if err := row.Scan(&c.ID, &c.EventID, &c.Text, &c.Points, &c.IsIncome, &c.Active, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// InsertCode creates a code. It returns nil without touching the existing
// row when the code text is already taken.
func (r *Repository) InsertCode(ctx context.Context, q store.Querier, eventID int64, text string, points int, isIncome bool) (*Code, error) {
	return scanCode(q.QueryRow(ctx, `
		INSERT INTO codes (event_id, code, points, is_income, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (code) DO NOTHING
		RETURNING `+codeColumns,
		eventID, text, points, isIncome))
}

// FindCode looks a normalized code up; nil when missing.
func (r *Repository) FindCode(ctx context.Context, q store.Querier, text string) (*Code, error) {
	return scanCode(q.QueryRow(ctx, `SELECT `+codeColumns+` FROM codes WHERE code = $1`, text))
}

// CodeExists checks whether a normalized code text is taken.
func (r *Repository) CodeExists(ctx context.Context, q store.Querier, text string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM codes WHERE code = $1)`, text).Scan(&exists)
	return exists, err
}

// DeleteCode removes a code by its text.
func (r *Repository) DeleteCode(ctx context.Context, q store.Querier, text string) (bool, error) {
	tag, err := q.Exec(ctx, `DELETE FROM codes WHERE code = $1`, text)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetCodeActive toggles whether a code can be redeemed.
func (r *Repository) SetCodeActive(ctx context.Context, q store.Querier, text string, active bool) (bool, error) {
	tag, err := q.Exec(ctx, `UPDATE codes SET active = $2 WHERE code = $1`, text, active)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Redeemed reports whether the student already consumed the code.
func (r *Repository) Redeemed(ctx context.Context, q store.Querier, userID, codeID int64) (bool, error) {
	var used bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM user_codes WHERE user_id = $1 AND code_id = $2)
	`, userID, codeID).Scan(&used)
	return used, err
}

// InsertRedemption records a (student, code) use. The primary key makes a
// second insert for the same pair a no-op that reports false.
func (r *Repository) InsertRedemption(ctx context.Context, q store.Querier, userID, codeID int64) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_codes (user_id, code_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, code_id) DO NOTHING
	`, userID, codeID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListCodeUsage returns codes with their redemption counts, optionally for one event.
func (r *Repository) ListCodeUsage(ctx context.Context, q store.Querier, eventID *int64) ([]CodeUsage, error) {
	rows, err := q.Query(ctx, `
		SELECT c.code, c.event_id, e.name, c.points, c.is_income, c.active, COUNT(uc.user_id)
		FROM codes c
		JOIN events e ON e.id = c.event_id
		LEFT JOIN user_codes uc ON uc.code_id = c.id
		WHERE $1::BIGINT IS NULL OR c.event_id = $1
		GROUP BY c.id, e.id, e.name
		ORDER BY e.id DESC, c.id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CodeUsage
	for rows.Next() {
		var u CodeUsage
		if err := rows.Scan(&u.Code, &u.EventID, &u.EventName, &u.Points, &u.IsIncome, &u.Active, &u.UsageCount); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
