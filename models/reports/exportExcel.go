package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WritePurchaseCostForecastExcel streams the forecast report as an xlsx
// workbook. Decimal columns are written as float64 so spreadsheet formulas
// work on them.
func WritePurchaseCostForecastExcel(report *PurchaseCostForecastResponse, w io.Writer) error {

	f := excelize.NewFile()
	sheetName := "Sheet1"
	_, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}

	// Add headers
	headings := []string{
		"Item", "Location", "ConsumptionPerDay", "IncomingPerDay",
		"ForecastConsumption", "ForecastIncoming", "NetQuantity",
		"UnitCost", "ProjectedCost",
	}
	col := 'A'
	for _, h := range headings {
		f.SetCellValue(sheetName, string(col)+"1", h)
		col++
	}

	// Add data
	rowNo := 2
	for _, d := range report.Rows {
		unitCost, _ := d.UnitCost.Float64()
		projectedCost, _ := d.ProjectedCost.Float64()
		f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), d.ItemName)
		f.SetCellValue(sheetName, "B"+fmt.Sprint(rowNo), d.LocationName)
		f.SetCellValue(sheetName, "C"+fmt.Sprint(rowNo), d.ConsumptionPerDay)
		f.SetCellValue(sheetName, "D"+fmt.Sprint(rowNo), d.IncomingPerDay)
		f.SetCellValue(sheetName, "E"+fmt.Sprint(rowNo), d.ForecastConsumption)
		f.SetCellValue(sheetName, "F"+fmt.Sprint(rowNo), d.ForecastIncoming)
		f.SetCellValue(sheetName, "G"+fmt.Sprint(rowNo), d.NetQuantity)
		f.SetCellValue(sheetName, "H"+fmt.Sprint(rowNo), unitCost)
		f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), projectedCost)
		rowNo++
	}

	// Totals row
	totalCost, _ := report.Totals.ProjectedCost.Float64()
	f.SetCellValue(sheetName, "A"+fmt.Sprint(rowNo), "Total")
	f.SetCellValue(sheetName, "G"+fmt.Sprint(rowNo), report.Totals.NetQuantity)
	f.SetCellValue(sheetName, "I"+fmt.Sprint(rowNo), totalCost)

	return f.Write(w)
}
