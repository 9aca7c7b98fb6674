package attendance

import (
	"context"
	"database/sql"
	"errors"

	"faceattend/internal/model"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByStudentAndDate returns the record for (student, date), or nil when the
// student has no attendance for that date. date uses YYYY-MM-DD.
func (r *Repository) FindByStudentAndDate(ctx context.Context, studentID int64, date string) (*model.Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, date::text, time::text, status
		FROM attendance
		WHERE student_id = $1 AND date = $2::date
	`, studentID, date)
	var a model.Attendance
	if err := row.Scan(&a.ID, &a.StudentID, &a.Date, &a.Time, &a.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// FindByDate returns all records for a date with student name and roll number
// joined in, ordered by time of day.
func (r *Repository) FindByDate(ctx context.Context, date string) ([]model.Attendance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.date::text, a.time::text, a.status, s.name, s.roll_no
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.date = $1::date
		ORDER BY a.time
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.Attendance
	for rows.Next() {
		var a model.Attendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.Date, &a.Time, &a.Status, &a.StudentName, &a.RollNo); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// Insert writes a new record. A duplicate (student, date) pair surfaces as a
// unique violation from the database.
func (r *Repository) Insert(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, date, time, status)
		VALUES ($1, $2::date, $3::time, $4)
		RETURNING id
	`, a.StudentID, a.Date, a.Time, a.Status)
	if err := row.Scan(&a.ID); err != nil {
		return model.Attendance{}, err
	}
	return a, nil
}
