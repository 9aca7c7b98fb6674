package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Dashboard renders the static dashboard page for GET / and GET /dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", nil)
}

// AttendancePage renders attendance records for a date, defaulting to today.
// The date query parameter uses YYYY-MM-DD.
func (h *Handler) AttendancePage(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		c.String(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	records, err := h.svc.ByDate(c.Request.Context(), date)
	if err != nil {
		c.String(http.StatusInternalServerError, "failed to load attendance")
		return
	}

	c.HTML(http.StatusOK, "attendance.html", gin.H{
		"SelectedDate": date,
		"Records":      records,
	})
}
