package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/domain/similarity"
)

const (
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	companyIDKey      = "company_id"
	defaultExportSpan = 6
)

// RollupQuery selects a dimension and an optional [from, to) range; the default range is the current month
type RollupQuery struct {
	Dimension string `form:"dimension" binding:"required,dimension"`
	From      string `form:"from"`
	To        string `form:"to"`
}

// RangeQuery is an optional [from, to) range plus a trend length
type RangeQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Months int    `form:"months" binding:"omitempty,min=1,max=24"`
}

// requireCompany resolves the :company path segment and checks the caller belongs to it
func (h *Handlers) requireCompany(c *gin.Context) {
	companyID, err := strconv.ParseInt(c.Param("company"), 10, 64)
	if err != nil || companyID <= 0 {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid company")
		return
	}

	user, err := h.services.Users.GetByID(c.Request.Context(), currentUser(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	if user == nil || !user.Active || user.CompanyID != companyID {
		abort(c, http.StatusForbidden, "FORBIDDEN", "not a member of this company")
		return
	}

	c.Set(companyIDKey, companyID)
	c.Next()
}

// Rollup handles GET /api/dashboard/:company/rollup
func (h *Handlers) Rollup(c *gin.Context) {
	var q RollupQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	from, to, ok := dateRange(c, q.From, q.To)
	if !ok {
		return
	}

	rollup, err := h.services.Dashboard.Rollup(c.Request.Context(), c.GetInt64(companyIDKey), q.Dimension, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rollup})
}

// Trends handles GET /api/dashboard/:company/trends
func (h *Handlers) Trends(c *gin.Context) {
	var q RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	points, err := h.services.Dashboard.Trends(c.Request.Context(), c.GetInt64(companyIDKey), q.Months, time.Now().UTC())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: points})
}

// Summary handles GET /api/dashboard/:company/summary
func (h *Handlers) Summary(c *gin.Context) {
	var q RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	from, to, ok := dateRange(c, q.From, q.To)
	if !ok {
		return
	}

	summary, err := h.services.Dashboard.Summary(c.Request.Context(), c.GetInt64(companyIDKey), from, to, q.Months)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// Export handles GET /api/dashboard/:company/export and streams an xlsx workbook
func (h *Handlers) Export(c *gin.Context) {
	var q RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	from, to, ok := dateRange(c, q.From, q.To)
	if !ok {
		return
	}
	if q.Months == 0 {
		q.Months = defaultExportSpan
	}

	companyID := c.GetInt64(companyIDKey)
	f, err := h.services.Dashboard.ExportXLSX(c.Request.Context(), companyID, from, to, q.Months)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.fail(c, err)
		return
	}

	name := fmt.Sprintf("spend-%d-%s.xlsx", companyID, from.Format("2006-01"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// dateRange parses optional from/to dates, defaulting to the current calendar month
func dateRange(c *gin.Context, rawFrom, rawTo string) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if rawFrom != "" {
		t, ok := similarity.ParseDate(rawFrom)
		if !ok {
			abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid from")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if rawTo != "" {
		t, ok := similarity.ParseDate(rawTo)
		if !ok {
			abort(c, http.StatusBadRequest, "INVALID_INPUT", "invalid to")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !to.After(from) {
		abort(c, http.StatusBadRequest, "INVALID_INPUT", "to must be after from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
