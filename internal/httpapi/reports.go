package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights/internal/calls"
	"call-insights/internal/export"
	"call-insights/internal/reporting"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// parseRange reads optional RFC 3339 ?from= and ?to= bounds.
func parseRange(c *gin.Context) (reporting.TimeRange, error) {
	var r reporting.TimeRange
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return r, fmt.Errorf("from must be RFC 3339, got %q", v)
		}
		r.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return r, fmt.Errorf("to must be RFC 3339, got %q", v)
		}
		r.To = t
	}
	return r, nil
}

func (h Handlers) ReportSummary(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		badRequest(c, "Invalid report range", err.Error())
		return
	}
	req := reporting.SummaryRequest{Range: r}
	if v := c.Query("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(c, "Invalid report request", "top must be an integer")
			return
		}
		req.TopN = n
	}

	out, err := h.Reports.Summary(c.Request.Context(), req)
	if err != nil {
		respondError(c, "Failed to build report", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ExportXLSX downloads the calls in range as a spreadsheet.
func (h Handlers) ExportXLSX(c *gin.Context) {
	r, err := parseRange(c)
	if err != nil {
		badRequest(c, "Invalid report range", err.Error())
		return
	}
	details, err := h.Calls.ListCallDetails(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to export calls", err)
		return
	}

	rows := make([]calls.CallDetail, 0, len(details))
	for _, d := range details {
		if !r.From.IsZero() && d.Call.CreatedAt.Before(r.From) {
			continue
		}
		if !r.To.IsZero() && !d.Call.CreatedAt.Before(r.To) {
			continue
		}
		rows = append(rows, d)
	}

	var buf bytes.Buffer
	if err := export.WriteCallsXLSX(&buf, rows); err != nil {
		respondError(c, "Failed to export calls", err)
		return
	}
	name := fmt.Sprintf("calls-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
