package audit

import (
	"bufio"
	"encoding/csv"
	"io"
	"time"
)

var csvHeader = []string{"occurred_at", "actor", "action", "client_ip", "detail"}

// WriteCSV streams rows as CSV with a header line.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	buf := bufio.NewWriterSize(w, 32*1024)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.ClientIP,
			row.Detail,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return buf.Flush()
}
