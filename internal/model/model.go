package model

import "time"

// Student is a registered student. FaceEncoding holds the raw JSON body
// returned by the recognition service's /encode-face endpoint, stored verbatim.
type Student struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	RollNo       string    `json:"rollNo"`
	ClassName    string    `json:"className"`
	FaceEncoding string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attendance is a single attendance record. Date and Time use the wire
// formats YYYY-MM-DD and HH:MM:SS. StudentName and RollNo are joined from the
// students table for listing.
type Attendance struct {
	ID          int64  `json:"id"`
	StudentID   int64  `json:"student_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
	StudentName string `json:"student_name,omitempty"`
	RollNo      string `json:"roll_no,omitempty"`
}
