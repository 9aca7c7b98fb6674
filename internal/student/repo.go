package student

import (
	"context"
	"database/sql"
	"errors"

	"faceattend/internal/model"
)

// Repository persists students in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns all students ordered by roll number.
func (r *Repository) List(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, roll_no, class_name, face_encoding, created_at
		FROM students
		ORDER BY roll_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.RollNo, &s.ClassName, &s.FaceEncoding, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Get returns a student by id, or nil when not found.
func (r *Repository) Get(ctx context.Context, id int64) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_no, class_name, face_encoding, created_at
		FROM students WHERE id = $1
	`, id)
	var s model.Student
	if err := row.Scan(&s.ID, &s.Name, &s.RollNo, &s.ClassName, &s.FaceEncoding, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetByRollNo returns a student by roll number, or nil when not found.
func (r *Repository) GetByRollNo(ctx context.Context, rollNo string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, roll_no, class_name, face_encoding, created_at
		FROM students WHERE roll_no = $1
	`, rollNo)
	var s model.Student
	if err := row.Scan(&s.ID, &s.Name, &s.RollNo, &s.ClassName, &s.FaceEncoding, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new student and fills in its id and creation time.
// A duplicate roll number surfaces as a unique violation from the database.
func (r *Repository) Create(ctx context.Context, s *model.Student) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, roll_no, class_name, face_encoding)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, s.Name, s.RollNo, s.ClassName, s.FaceEncoding)
	return row.Scan(&s.ID, &s.CreatedAt)
}

// Delete removes a student by id and reports whether a row was deleted.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
