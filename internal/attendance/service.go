package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"faceattend/internal/faceclient"
	"faceattend/internal/metrics"
	"faceattend/internal/model"
	"faceattend/internal/store"
	"faceattend/internal/student"
)

// Sentinel errors the handler layer maps onto HTTP statuses.
var (
	ErrValidation = errors.New("invalid request")
	ErrDuplicate  = errors.New("already exists")
	ErrNotFound   = errors.New("not found")
	ErrRejected   = errors.New("face service rejected request")
	ErrNoMatch    = errors.New("face not recognized")
)

// StudentStore is the student persistence surface the service needs.
type StudentStore interface {
	List(ctx context.Context) ([]model.Student, error)
	Get(ctx context.Context, id int64) (*model.Student, error)
	GetByRollNo(ctx context.Context, rollNo string) (*model.Student, error)
	Create(ctx context.Context, s *model.Student) error
	Delete(ctx context.Context, id int64) (bool, error)
}

// RecordStore is the attendance persistence surface the service needs.
type RecordStore interface {
	FindByStudentAndDate(ctx context.Context, studentID int64, date string) (*model.Attendance, error)
	FindByDate(ctx context.Context, date string) ([]model.Attendance, error)
	Insert(ctx context.Context, a model.Attendance) (model.Attendance, error)
}

// Recognizer is the recognition gateway surface the service needs.
type Recognizer interface {
	Encode(ctx context.Context, image []byte, filename string) (*faceclient.EncodeResult, []byte, error)
	Recognize(ctx context.Context, image []byte, filename string, known [][]float64) (*faceclient.RecognizeResult, error)
}

var (
	_ StudentStore = (*student.Repository)(nil)
	_ RecordStore  = (*Repository)(nil)
	_ Recognizer   = (*faceclient.Client)(nil)
)

// Service orchestrates registration and attendance marking against the
// recognition gateway and the relational store.
type Service struct {
	students  StudentStore
	records   RecordStore
	face      Recognizer
	threshold float64
	now       func() time.Time
}

// NewService creates a service. threshold is the maximum recognition distance
// accepted as a match.
func NewService(students StudentStore, records RecordStore, face Recognizer, threshold float64) *Service {
	return &Service{
		students:  students,
		records:   records,
		face:      face,
		threshold: threshold,
		now:       time.Now,
	}
}

// Register validates the input, asks the gateway to encode the face, and
// persists a new student with the gateway's raw response body as the stored
// encoding. Registration is insert-only; an existing roll number is an error.
func (s *Service) Register(ctx context.Context, name, rollNo, className string, image []byte, filename string) (*model.Student, error) {
	name = strings.TrimSpace(name)
	rollNo = strings.TrimSpace(rollNo)
	className = strings.TrimSpace(className)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	case rollNo == "":
		return nil, fmt.Errorf("%w: roll number is required", ErrValidation)
	case className == "":
		return nil, fmt.Errorf("%w: class name is required", ErrValidation)
	case len(image) == 0:
		return nil, fmt.Errorf("%w: face image is required", ErrValidation)
	}

	existing, err := s.students.GetByRollNo(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("student with roll number %s %w", rollNo, ErrDuplicate)
	}

	result, raw, err := s.face.Encode(ctx, image, filename)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = "unknown error from face recognition service"
		}
		return nil, fmt.Errorf("%w: face encoding failed: %s", ErrRejected, msg)
	}

	st := &model.Student{
		Name:         name,
		RollNo:       rollNo,
		ClassName:    className,
		FaceEncoding: string(raw),
	}
	if err := s.students.Create(ctx, st); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, fmt.Errorf("student with roll number %s %w", rollNo, ErrDuplicate)
		}
		return nil, err
	}

	metrics.RegistrationsTotal.Inc()
	log.Printf("student registered: %s (roll %s)", st.Name, st.RollNo)
	return st, nil
}

// MarkResult is the outcome of a successful recognition.
type MarkResult struct {
	Student       model.Student
	Time          string
	Distance      float64
	AlreadyMarked bool
}

// galleryEntry pairs a student with their parsed encoding so the gateway's
// positional best_index resolves against the exact list that was sent.
type galleryEntry struct {
	student  model.Student
	encoding []float64
}

// MarkAttendance recognizes the probe image against all stored encodings and
// records a PRESENT row for the matched student if one does not already exist
// for today. Students with malformed stored encodings are skipped, not fatal.
func (s *Service) MarkAttendance(ctx context.Context, image []byte, filename string) (*MarkResult, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: face image is required", ErrValidation)
	}

	students, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, fmt.Errorf("%w: no students registered", ErrValidation)
	}

	gallery := make([]galleryEntry, 0, len(students))
	for _, st := range students {
		var payload struct {
			Encoding []float64 `json:"encoding"`
		}
		if err := json.Unmarshal([]byte(st.FaceEncoding), &payload); err != nil || payload.Encoding == nil {
			log.Printf("skipping student %s (roll %s): unusable stored encoding", st.Name, st.RollNo)
			continue
		}
		gallery = append(gallery, galleryEntry{student: st, encoding: payload.Encoding})
	}
	if len(gallery) == 0 {
		return nil, fmt.Errorf("%w: no valid face encodings found", ErrValidation)
	}

	known := make([][]float64, len(gallery))
	for i, entry := range gallery {
		known[i] = entry.encoding
	}

	result, err := s.face.Recognize(ctx, image, filename, known)
	if err != nil {
		if errors.Is(err, faceclient.ErrUnavailable) {
			metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		}
		return nil, err
	}
	if !result.Success {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		msg := result.Message
		if msg == "" {
			msg = "unknown error from face recognition service"
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	if result.BestIndex < 0 || result.BestIndex >= len(gallery) {
		return nil, fmt.Errorf("face service returned best_index %d for gallery of %d", result.BestIndex, len(gallery))
	}
	if result.Distance > s.threshold {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeNoMatch).Inc()
		return nil, fmt.Errorf("%w: distance %.2f (threshold %.2f)", ErrNoMatch, result.Distance, s.threshold)
	}

	matched := gallery[result.BestIndex].student
	now := s.now()
	today := now.Format("2006-01-02")

	existing, err := s.records.FindByStudentAndDate(ctx, matched.ID, today)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeAlreadyMarked).Inc()
		return &MarkResult{Student: matched, Time: existing.Time, Distance: result.Distance, AlreadyMarked: true}, nil
	}

	rec, err := s.records.Insert(ctx, model.Attendance{
		StudentID: matched.ID,
		Date:      today,
		Time:      now.Format("15:04:05"),
		Status:    "PRESENT",
	})
	if err != nil {
		// Lost a race with a concurrent request for the same student; the
		// unique index on (student_id, date) makes this an already-marked case.
		if store.IsUniqueViolation(err) {
			existing, ferr := s.records.FindByStudentAndDate(ctx, matched.ID, today)
			if ferr == nil && existing != nil {
				metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeAlreadyMarked).Inc()
				return &MarkResult{Student: matched, Time: existing.Time, Distance: result.Distance, AlreadyMarked: true}, nil
			}
		}
		return nil, err
	}

	metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeMarked).Inc()
	log.Printf("attendance marked: %s (roll %s) at %s", matched.Name, matched.RollNo, rec.Time)
	return &MarkResult{Student: matched, Time: rec.Time, Distance: result.Distance}, nil
}

// Students returns all registered students.
func (s *Service) Students(ctx context.Context) ([]model.Student, error) {
	return s.students.List(ctx)
}

// Student returns one student by id.
func (s *Service) Student(ctx context.Context, id int64) (*model.Student, error) {
	st, err := s.students.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, fmt.Errorf("student %d %w", id, ErrNotFound)
	}
	return st, nil
}

// DeleteStudent removes a student by id.
func (s *Service) DeleteStudent(ctx context.Context, id int64) error {
	deleted, err := s.students.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("student %d %w", id, ErrNotFound)
	}
	return nil
}

// ByDate returns attendance records for a date (YYYY-MM-DD).
func (s *Service) ByDate(ctx context.Context, date string) ([]model.Attendance, error) {
	return s.records.FindByDate(ctx, date)
}
