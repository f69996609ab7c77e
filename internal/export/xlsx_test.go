package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"call-insights/internal/calls"
)

func TestWriteCallsXLSX(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	details := []calls.CallDetail{
		{
			Call: calls.Call{ID: "c1", CallSID: "CA1", From: "+1", To: "+2", Status: calls.StatusTranscriptionComplete, Duration: 42, CreatedAt: at},
			Transcription: &calls.Transcription{
				Text: "hello", Summary: "greeting", Categories: []string{"general", "sales"}, Tags: []string{"hi"},
			},
		},
		{
			Call: calls.Call{ID: "c2", CallSID: "CA2", From: "+3", To: "+2", Status: calls.StatusPendingTranscription, CreatedAt: at},
		},
	}

	var buf bytes.Buffer
	if err := WriteCallsXLSX(&buf, details); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetCalls)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Call ID" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "c1" || rows[1][5] != "42" || rows[1][9] != "general, sales" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][4] != string(calls.StatusPendingTranscription) {
		t.Fatalf("unexpected second row %v", rows[2])
	}
}
