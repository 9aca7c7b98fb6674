package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	roll_no       TEXT NOT NULL UNIQUE,
	class_name    TEXT NOT NULL,
	face_encoding TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance (
	id          BIGSERIAL PRIMARY KEY,
	student_id  BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	date        DATE NOT NULL,
	time        TIME NOT NULL,
	status      TEXT NOT NULL DEFAULT 'PRESENT',
	UNIQUE (student_id, date)
);

CREATE INDEX IF NOT EXISTS idx_attendance_date ON attendance(date);
`

// Migrate applies the schema. Safe to run on every boot.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
