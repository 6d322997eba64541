package reporting

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const scheduleSheet = "Rellamadas"

var scheduleHeader = []any{
	"ID", "Lead", "Nombre", "Teléfono", "Clínica", "Fecha", "Hora", "Intento", "Último resultado", "Estado",
}

// WriteScheduleXLSX renders lines as a single-sheet workbook with a frozen
// header row.
func WriteScheduleXLSX(w io.Writer, lines []ScheduleLine) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), scheduleSheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(scheduleSheet, "A1", &scheduleHeader); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(scheduleSheet, 1, 1, bold); err != nil {
		return err
	}

	for i, l := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			l.ScheduleID,
			l.LeadID,
			l.Name,
			l.Phone,
			l.Clinic,
			l.ScheduledAt.Format("02/01/2006"),
			l.ScheduledAt.Format("15:04"),
			l.AttemptNumber,
			l.LastOutcome,
			l.Status,
		}
		if err := f.SetSheetRow(scheduleSheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(scheduleSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if err := f.SetColWidth(scheduleSheet, "C", "E", 24); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
