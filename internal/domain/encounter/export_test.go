package encounter

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestHistoryWorkbook(t *testing.T) {
	tod, _ := NewTimeOfDay(9, 0, 0)
	weight := 12.5
	rows := []*EncounterWithRecord{
		{
			Encounter: Encounter{VisitDate: NewDate(2024, time.March, 1), VisitTime: tod, Type: "Checkup", Status: StatusCompleted},
			Record:    &ClinicalRecord{Weight: &weight, Diagnosis: "Healthy"},
		},
		{
			Encounter: Encounter{VisitDate: NewDate(2024, time.April, 2), VisitTime: tod, Type: "Vaccination", Status: StatusPending},
		},
	}

	data, err := HistoryWorkbook(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	got, err := f.GetRows(historySheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(got))
	}
	if got[0][0] != "Date" {
		t.Errorf("unexpected header %v", got[0])
	}
	if got[1][0] != "2024-03-01" || got[1][1] != "09:00:00" || got[1][10] != "Healthy" {
		t.Errorf("unexpected first row %v", got[1])
	}
	if got[2][3] != "Pending" {
		t.Errorf("unexpected second row %v", got[2])
	}
}

func TestHistoryWorkbook_Empty(t *testing.T) {
	data, err := HistoryWorkbook(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected a workbook with a header row")
	}
}
