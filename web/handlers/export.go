package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	web "github.com/bastelix/sommerfest-quiz-sub007/web/common"
)

// Export streams the tenant list as an xlsx workbook.
func (ep *Endpoint) Export(c *gin.Context) {
	list, err := ep.service.GetAll(c.Query("q"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Tenants"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"UID", "Subdomain", "Plan", "Status", "Plan started", "Plan expires", "Created"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, t := range list {
		plan := ""
		if t.Plan != nil {
			plan = *t.Plan
		}
		values := []interface{}{
			t.UID,
			t.Subdomain,
			plan,
			t.Status,
			formatTime(t.PlanStartedAt),
			formatTime(t.PlanExpiresAt),
			t.CreatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=tenants-%s.xlsx", time.Now().Format("2006-01-02")))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, web.NewErrorResponse(err.Error()))
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
