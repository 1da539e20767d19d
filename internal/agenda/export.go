package agenda

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"bioskin/internal/calendar"
)

const (
	SheetAppointments = "Citas"
	SheetBlocks       = "Bloqueos"
	SheetDays         = "Resumen"
)

// sheetWriter appends rows to the sheets of one workbook.
type sheetWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

func (w *sheetWriter) addSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if w.currentSheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.currentSheet = name
	w.currentRow = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns ...string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row...); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
	}
	return nil
}

func (w *sheetWriter) writeRow(values ...any) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}
	for i, val := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, w.currentRow)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.currentSheet, cell, val); err != nil {
			return err
		}
	}
	w.currentRow++
	return nil
}

// WriteXLSX exports the window as a workbook with one sheet for
// appointments, one for blocked hours and a per-day summary. Times are
// rendered in loc.
func WriteXLSX(out io.Writer, w *Window, loc *time.Location) error {
	sw := newSheetWriter()
	defer sw.file.Close()

	if err := sw.addSheet(SheetAppointments); err != nil {
		return err
	}
	if err := sw.writeHeader("Fecha", "Inicio", "Fin", "Paciente", "Teléfono", "Servicio", "ID"); err != nil {
		return err
	}
	for _, ev := range w.OfKind(calendar.KindAppointment) {
		start, end := ev.Interval.Start.In(loc), ev.Interval.End.In(loc)
		if err := sw.writeRow(start.Format("2006-01-02"), start.Format("15:04"), end.Format("15:04"),
			ev.Meta.Patient, ev.Meta.Phone, ev.Meta.Service, ev.ID); err != nil {
			return err
		}
	}

	if err := sw.addSheet(SheetBlocks); err != nil {
		return err
	}
	if err := sw.writeHeader("Fecha", "Hora", "Motivo", "Lote", "ID"); err != nil {
		return err
	}
	for _, ev := range w.OfKind(calendar.KindBlock) {
		start := ev.Interval.Start.In(loc)
		if err := sw.writeRow(start.Format("2006-01-02"), start.Format("15:04"),
			ev.Meta.Reason, ev.Meta.BatchID, ev.ID); err != nil {
			return err
		}
	}

	if err := sw.addSheet(SheetDays); err != nil {
		return err
	}
	if err := sw.writeHeader("Fecha", "Eventos", "Estado"); err != nil {
		return err
	}
	for _, d := range w.Days {
		status := "ok"
		if d.Err != nil {
			status = "error: " + d.Err.Error()
		}
		if err := sw.writeRow(d.Date.Format("2006-01-02"), d.Count, status); err != nil {
			return err
		}
	}

	return sw.file.Write(out)
}
