package handler

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/faceclient"
	"faceattend/internal/model"
)

// Handler exposes the student and attendance API over gin.
type Handler struct {
	svc *attendance.Service
}

// New creates a handler backed by the attendance service.
func New(svc *attendance.Service) *Handler {
	return &Handler{svc: svc}
}

// Mount registers all routes on the engine.
func (h *Handler) Mount(r *gin.Engine) {
	api := r.Group("/api/students")
	api.POST("/register", h.RegisterStudent)
	api.GET("", h.ListStudents)
	api.GET("/:id", h.GetStudent)
	api.DELETE("/:id", h.DeleteStudent)
	api.POST("/mark-attendance", h.MarkAttendance)

	r.GET("/", h.Dashboard)
	r.GET("/dashboard", h.Dashboard)
	r.GET("/attendance", h.AttendancePage)
}

// RegisterStudent handles POST /api/students/register. Expects multipart form
// fields name, rollNo, className and file field faceImage.
func (h *Handler) RegisterStudent(c *gin.Context) {
	name := c.PostForm("name")
	rollNo := c.PostForm("rollNo")
	className := c.PostForm("className")

	image, filename, err := readImage(c, "faceImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "face image is required"})
		return
	}

	st, err := h.svc.Register(c.Request.Context(), name, rollNo, className, image, filename)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Student %s registered successfully with roll number %s", st.Name, st.RollNo),
		"student": st,
	})
}

// MarkAttendance handles POST /api/students/mark-attendance. Expects a
// multipart file field faceImage containing the probe image.
func (h *Handler) MarkAttendance(c *gin.Context) {
	image, filename, err := readImage(c, "faceImage")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "face image is required"})
		return
	}

	result, err := h.svc.MarkAttendance(c.Request.Context(), image, filename)
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg := fmt.Sprintf("Attendance marked successfully for %s (Roll: %s) at %s",
		result.Student.Name, result.Student.RollNo, result.Time)
	if result.AlreadyMarked {
		msg = fmt.Sprintf("Attendance already marked for %s (Roll: %s) today at %s",
			result.Student.Name, result.Student.RollNo, result.Time)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  msg,
		"student":  result.Student,
		"distance": result.Distance,
	})
}

// ListStudents handles GET /api/students.
func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.svc.Students(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if students == nil {
		students = []model.Student{}
	}
	c.JSON(http.StatusOK, students)
}

// GetStudent handles GET /api/students/:id.
func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	st, err := h.svc.Student(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteStudent handles DELETE /api/students/:id.
func (h *Handler) DeleteStudent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteStudent(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Student deleted successfully"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a number"})
		return 0, false
	}
	return id, true
}

func readImage(c *gin.Context, field string) ([]byte, string, error) {
	file, header, err := c.Request.FormFile(field)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty file")
	}
	return data, header.Filename, nil
}

// respondError maps service errors onto the HTTP status taxonomy.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, attendance.ErrDuplicate),
		errors.Is(err, attendance.ErrRejected),
		errors.Is(err, attendance.ErrNoMatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, faceclient.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cannot connect to face recognition service"})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
