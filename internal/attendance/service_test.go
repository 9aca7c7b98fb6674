package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"faceattend/internal/faceclient"
	"faceattend/internal/model"
)

// ---------- fakes ----------

type fakeStudents struct {
	students []model.Student
	nextID   int64
}

func (f *fakeStudents) List(ctx context.Context) ([]model.Student, error) {
	return append([]model.Student(nil), f.students...), nil
}

func (f *fakeStudents) Get(ctx context.Context, id int64) (*model.Student, error) {
	for _, s := range f.students {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStudents) GetByRollNo(ctx context.Context, rollNo string) (*model.Student, error) {
	for _, s := range f.students {
		if s.RollNo == rollNo {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (f *fakeStudents) Create(ctx context.Context, s *model.Student) error {
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now()
	f.students = append(f.students, *s)
	return nil
}

func (f *fakeStudents) Delete(ctx context.Context, id int64) (bool, error) {
	for i, s := range f.students {
		if s.ID == id {
			f.students = append(f.students[:i], f.students[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type fakeRecords struct {
	records []model.Attendance
	nextID  int64
}

func (f *fakeRecords) FindByStudentAndDate(ctx context.Context, studentID int64, date string) (*model.Attendance, error) {
	for _, a := range f.records {
		if a.StudentID == studentID && a.Date == date {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (f *fakeRecords) FindByDate(ctx context.Context, date string) ([]model.Attendance, error) {
	var out []model.Attendance
	for _, a := range f.records {
		if a.Date == date {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRecords) Insert(ctx context.Context, a model.Attendance) (model.Attendance, error) {
	f.nextID++
	a.ID = f.nextID
	f.records = append(f.records, a)
	return a, nil
}

type fakeFace struct {
	encodeResult    *faceclient.EncodeResult
	encodeRaw       []byte
	encodeErr       error
	recognizeResult *faceclient.RecognizeResult
	recognizeErr    error
	gotKnown        [][]float64
}

func (f *fakeFace) Encode(ctx context.Context, image []byte, filename string) (*faceclient.EncodeResult, []byte, error) {
	return f.encodeResult, f.encodeRaw, f.encodeErr
}

func (f *fakeFace) Recognize(ctx context.Context, image []byte, filename string, known [][]float64) (*faceclient.RecognizeResult, error) {
	f.gotKnown = known
	return f.recognizeResult, f.recognizeErr
}

func encodedStudent(id int64, roll string, enc string) model.Student {
	return model.Student{
		ID:           id,
		Name:         "Student " + roll,
		RollNo:       roll,
		ClassName:    "10A",
		FaceEncoding: enc,
	}
}

const goodEncoding = `{"success":true,"encoding":[0.5,0.5]}`

// ---------- registration ----------

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name                string
		inName, roll, class string
		image               []byte
	}{
		{"empty name", "", "R1", "10A", []byte("img")},
		{"whitespace name", "   ", "R1", "10A", []byte("img")},
		{"empty roll", "Asha", "", "10A", []byte("img")},
		{"empty class", "Asha", "R1", "  ", []byte("img")},
		{"empty image", "Asha", "R1", "10A", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			students := &fakeStudents{}
			svc := NewService(students, &fakeRecords{}, &fakeFace{}, 15.0)

			_, err := svc.Register(context.Background(), tt.inName, tt.roll, tt.class, tt.image, "f.jpg")
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
			if len(students.students) != 0 {
				t.Error("no student should be persisted")
			}
		})
	}
}

func TestRegisterDuplicateRollNo(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	face := &fakeFace{
		encodeResult: &faceclient.EncodeResult{Success: true, Encoding: []float64{0.1}},
		encodeRaw:    []byte(goodEncoding),
	}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	_, err := svc.Register(context.Background(), "Other", "R1", "10B", []byte("img"), "f.jpg")
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if len(students.students) != 1 {
		t.Errorf("expected exactly one student for roll R1, got %d", len(students.students))
	}
}

func TestRegisterGatewayRejected(t *testing.T) {
	students := &fakeStudents{}
	face := &fakeFace{encodeResult: &faceclient.EncodeResult{Success: false, Message: "No face detected"}}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	_, err := svc.Register(context.Background(), "Asha", "R1", "10A", []byte("img"), "f.jpg")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "No face detected") {
		t.Errorf("upstream message not surfaced: %v", err)
	}
	if len(students.students) != 0 {
		t.Error("no student should be persisted on rejection")
	}
}

func TestRegisterGatewayUnreachable(t *testing.T) {
	students := &fakeStudents{}
	face := &fakeFace{encodeErr: fmt.Errorf("dial tcp: %w", faceclient.ErrUnavailable)}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	_, err := svc.Register(context.Background(), "Asha", "R1", "10A", []byte("img"), "f.jpg")
	if !errors.Is(err, faceclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(students.students) != 0 {
		t.Error("no partial state should be committed")
	}
}

func TestRegisterStoresRawGatewayBody(t *testing.T) {
	raw := `{"success":true,"message":"Face encoded successfully","width":100,"encoding":[0.25,0.75]}`
	students := &fakeStudents{}
	face := &fakeFace{
		encodeResult: &faceclient.EncodeResult{Success: true, Encoding: []float64{0.25, 0.75}},
		encodeRaw:    []byte(raw),
	}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	st, err := svc.Register(context.Background(), " Asha ", " R1 ", " 10A ", []byte("img"), "f.jpg")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if st.FaceEncoding != raw {
		t.Errorf("stored encoding must equal the raw gateway body, got %s", st.FaceEncoding)
	}
	if st.Name != "Asha" || st.RollNo != "R1" || st.ClassName != "10A" {
		t.Errorf("fields not trimmed: %+v", st)
	}
}

// ---------- attendance marking ----------

func TestMarkNoStudents(t *testing.T) {
	svc := NewService(&fakeStudents{}, &fakeRecords{}, &fakeFace{}, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMarkSkipsMalformedEncodings(t *testing.T) {
	students := &fakeStudents{nextID: 3, students: []model.Student{
		encodedStudent(1, "R1", `{"success":true,"encoding":[0.1,0.1]}`),
		encodedStudent(2, "R2", `not valid json`),
		encodedStudent(3, "R3", `{"success":true,"encoding":[0.3,0.3]}`),
	}}
	records := &fakeRecords{}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: true, BestIndex: 1, Distance: 3.0}}
	svc := NewService(students, records, face, 15.0)

	result, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if err != nil {
		t.Fatalf("MarkAttendance: %v", err)
	}
	// The filtered gallery is [R1, R3], so best_index 1 is R3.
	if result.Student.RollNo != "R3" {
		t.Errorf("index alignment broken: matched %s", result.Student.RollNo)
	}
	if len(face.gotKnown) != 2 || face.gotKnown[1][0] != 0.3 {
		t.Errorf("gallery sent to gateway wrong: %v", face.gotKnown)
	}
	if len(records.records) != 1 || records.records[0].StudentID != 3 {
		t.Errorf("attendance row wrong: %+v", records.records)
	}
}

func TestMarkMissingEncodingFieldSkipped(t *testing.T) {
	students := &fakeStudents{nextID: 2, students: []model.Student{
		encodedStudent(1, "R1", `{"success":false,"message":"nope"}`),
		encodedStudent(2, "R2", `{"success":true,"encoding":[0.2]}`),
	}}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: true, BestIndex: 0, Distance: 1.0}}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	result, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if err != nil {
		t.Fatalf("MarkAttendance: %v", err)
	}
	if result.Student.RollNo != "R2" {
		t.Errorf("expected R2 after skipping encoding-less student, got %s", result.Student.RollNo)
	}
}

func TestMarkAllEncodingsMalformed(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{
		encodedStudent(1, "R1", `garbage`),
	}}
	svc := NewService(students, &fakeRecords{}, &fakeFace{}, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestMarkCreatesRowThenIdempotent(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	records := &fakeRecords{}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: true, BestIndex: 0, Distance: 10.0}}
	svc := NewService(students, records, face, 15.0)
	svc.now = func() time.Time { return time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC) }

	first, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if err != nil {
		t.Fatalf("first MarkAttendance: %v", err)
	}
	if first.AlreadyMarked {
		t.Error("first call should create a new record")
	}
	if len(records.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records.records))
	}
	rec := records.records[0]
	if rec.Date != "2026-08-31" || rec.Time != "09:30:00" || rec.Status != "PRESENT" {
		t.Errorf("unexpected record %+v", rec)
	}

	second, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if err != nil {
		t.Fatalf("second MarkAttendance: %v", err)
	}
	if !second.AlreadyMarked {
		t.Error("second call should report already marked")
	}
	if second.Time != "09:30:00" {
		t.Errorf("already-marked should carry the original time, got %s", second.Time)
	}
	if len(records.records) != 1 {
		t.Errorf("second call must not create a row, got %d", len(records.records))
	}
}

func TestMarkAboveThreshold(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	records := &fakeRecords{}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: true, BestIndex: 0, Distance: 17.2}}
	svc := NewService(students, records, face, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "17.20") || !strings.Contains(err.Error(), "15.00") {
		t.Errorf("error must report distance and threshold: %v", err)
	}
	if len(records.records) != 0 {
		t.Error("no row should be created above threshold")
	}
}

func TestMarkGatewayUnreachable(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	records := &fakeRecords{}
	face := &fakeFace{recognizeErr: fmt.Errorf("dial tcp: %w", faceclient.ErrUnavailable)}
	svc := NewService(students, records, face, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if !errors.Is(err, faceclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(records.records) != 0 {
		t.Error("no partial state should be committed")
	}
}

func TestMarkGatewayRejected(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: false, Message: "No face detected"}}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "No face detected") {
		t.Errorf("upstream message not surfaced: %v", err)
	}
}

func TestMarkBestIndexOutOfRange(t *testing.T) {
	students := &fakeStudents{nextID: 1, students: []model.Student{encodedStudent(1, "R1", goodEncoding)}}
	face := &fakeFace{recognizeResult: &faceclient.RecognizeResult{Success: true, BestIndex: 5, Distance: 1.0}}
	svc := NewService(students, &fakeRecords{}, face, 15.0)

	_, err := svc.MarkAttendance(context.Background(), []byte("img"), "probe.jpg")
	if err == nil {
		t.Fatal("expected error for out-of-range best_index")
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNoMatch) {
		t.Errorf("out-of-range index is an internal error, got %v", err)
	}
}

// ---------- student CRUD ----------

func TestStudentNotFound(t *testing.T) {
	svc := NewService(&fakeStudents{}, &fakeRecords{}, &fakeFace{}, 15.0)

	if _, err := svc.Student(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteStudent(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteStudentRemovesOnlyThatRow(t *testing.T) {
	students := &fakeStudents{nextID: 2, students: []model.Student{
		encodedStudent(1, "R1", goodEncoding),
		encodedStudent(2, "R2", goodEncoding),
	}}
	svc := NewService(students, &fakeRecords{}, &fakeFace{}, 15.0)

	if err := svc.DeleteStudent(context.Background(), 1); err != nil {
		t.Fatalf("DeleteStudent: %v", err)
	}
	if len(students.students) != 1 || students.students[0].ID != 2 {
		t.Errorf("wrong rows left: %+v", students.students)
	}
}
