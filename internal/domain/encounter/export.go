package encounter

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const historySheet = "Visit History"

var historyHeader = []string{
	"Date", "Time", "Type", "Status", "Concerns", "Additional Services",
	"Weight (kg)", "Height (cm)", "Temperature (°C)", "Pulse Rate", "Diagnosis", "Remarks",
}

var historyColumnWidths = []float64{12, 10, 18, 12, 30, 24, 12, 12, 16, 11, 30, 30}

// HistoryWorkbook renders encounters as a single-sheet .xlsx document.
func HistoryWorkbook(rows []*EncounterWithRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(historySheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]any, len(historyHeader))
	for i, h := range historyHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(historyHeader))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(historySheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range historyColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(historySheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := historyRow(r)
		if err := f.SetSheetRow(historySheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func historyRow(r *EncounterWithRecord) []any {
	row := []any{
		r.VisitDate.String(), r.VisitTime.String(), r.Type, string(r.Status),
		r.Concerns, r.AdditionalServices,
		"", "", "", "", "", "",
	}
	if rec := r.Record; rec != nil {
		if rec.Weight != nil {
			row[6] = *rec.Weight
		}
		if rec.Height != nil {
			row[7] = *rec.Height
		}
		if rec.Temperature != nil {
			row[8] = *rec.Temperature
		}
		if rec.PulseRate != nil {
			row[9] = *rec.PulseRate
		}
		row[10] = rec.Diagnosis
		row[11] = rec.Remarks
	}
	return row
}
