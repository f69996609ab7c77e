package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"call-insights/internal/calls"
)

const sheetCalls = "Calls"

var callColumns = []any{
	"Call ID", "Call SID", "From", "To", "Status", "Duration (s)", "Created At",
	"Transcript", "Summary", "Categories", "Tags",
}

// WriteCallsXLSX renders one row per call with its transcription inlined.
func WriteCallsXLSX(w io.Writer, details []calls.CallDetail) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetCalls); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetCalls, "A1", &callColumns); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	if err := f.SetPanes(sheetCalls, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("export: freeze header: %w", err)
	}

	for i, d := range details {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			d.Call.ID, d.Call.CallSID, d.Call.From, d.Call.To, string(d.Call.Status),
			d.Call.Duration, d.Call.CreatedAt.UTC().Format(time.RFC3339),
			"", "", "", "",
		}
		if t := d.Transcription; t != nil {
			row[7] = t.Text
			row[8] = t.Summary
			row[9] = strings.Join(t.Categories, ", ")
			row[10] = strings.Join(t.Tags, ", ")
		}
		if err := f.SetSheetRow(sheetCalls, cell, &row); err != nil {
			return fmt.Errorf("export: row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheetCalls, "H", "I", 60); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write: %w", err)
	}
	return nil
}
