package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	ingestion "farmgate/internal/ingestion/domain"
)

// BuildDeadLetterCSV renders dead-letter records as CSV.
func BuildDeadLetterCSV(records []ingestion.IngestionError) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"event_id", "device_id", "reading_ts", "lat", "lon", "error_type", "error_code", "error_message", "ingested_at"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := writer.Write(deadLetterRow(rec)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDeadLetterXLSX renders dead-letter records as a workbook.
func BuildDeadLetterXLSX(records []ingestion.IngestionError) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "dead_letters"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Event ID", "Device ID", "Reading TS", "Lat", "Lon", "Error Type", "Error Code", "Message", "Ingested At"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}
	for i, rec := range records {
		row := deadLetterRow(rec)
		for j, value := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDeadLetterPDF renders a minimal PDF listing of dead-letter records.
func BuildDeadLetterPDF(records []ingestion.IngestionError) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Ingestion Dead Letters")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Records: %d", len(records)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 8)
	pdf.CellFormat(55, 6, "Event ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Device", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Code", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Ingested", "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 6, "Message", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, rec := range records {
		message := rec.Message
		if len(message) > 60 {
			message = message[:57] + "..."
		}
		pdf.CellFormat(55, 6, rec.EventID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, rec.DeviceID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, string(rec.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, string(rec.Code), "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, rec.IngestedAt.Format("2006-01-02 15:04"), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 6, message, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func deadLetterRow(rec ingestion.IngestionError) []string {
	ts := ""
	if rec.Timestamp != nil {
		ts = rec.Timestamp.Format(time.RFC3339)
	}
	lat, lon := "", ""
	if rec.Geo != nil {
		lat = strconv.FormatFloat(rec.Geo.Lat, 'f', -1, 64)
		lon = strconv.FormatFloat(rec.Geo.Lon, 'f', -1, 64)
	}
	return []string{
		rec.EventID,
		rec.DeviceID,
		ts,
		lat,
		lon,
		string(rec.Type),
		string(rec.Code),
		rec.Message,
		rec.IngestedAt.Format(time.RFC3339),
	}
}
