package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// exportMonthHandler renders the month worksheet as an XLSX workbook for the
// billing office.
func exportMonthHandler(c *gin.Context) {
	month := c.Param("month")
	rows, err := loadMonthRows(month)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Readings"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Asset Tag", "Type", "Meter Number", "Serial", "Start", "End", "Usage", "Status", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, r := range rows {
		rowN := i + 2
		set := func(col int, v interface{}) {
			cell, _ := excelize.CoordinatesToCellName(col, rowN)
			_ = f.SetCellValue(sheet, cell, v)
		}
		set(1, r.AssetTag)
		set(2, string(r.MeterType))
		set(3, r.Number)
		set(4, r.Serial)
		set(5, r.MeterStart)
		if r.MeterEnd != nil {
			set(6, *r.MeterEnd)
		}
		if r.Usage != nil {
			set(7, *r.Usage)
		}
		set(8, string(r.Status))
		set(9, r.Note)
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=meter_usages_%s.xlsx", month))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		logger.Error().Err(err).Str("month", month).Msg("xlsx export failed")
	}
}
