package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

// WriteCSV renders timeline rows as CSV with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"at", "actor", "action", "entity", "entity_id", "number"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{row.At.UTC().Format(time.RFC3339), row.Actor, row.Action, row.Entity, row.EntityID, row.Number}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
