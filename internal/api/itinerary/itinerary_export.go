package itinerary

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"github.com/sakatoku/sakarctic/internal/types"
)

var csvHeader = []string{"VISIT_TIME", "NAME", "CATEGORY", "WEBSITE", "LATITUDE", "LONGITUDE", "SCORE"}

// ExportCSV writes one itinerary to <dir>/<kind>_<sessionID>.csv and returns
// the file path.
func ExportCSV(dir string, sessionID uuid.UUID, itinerary types.Itinerary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", itinerary.Kind, sessionID))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return "", fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, slot := range itinerary.Slots {
		record := []string{
			slot.VisitTime,
			slot.Item.Name,
			slot.Item.Category,
			slot.Item.Website,
			strconv.FormatFloat(slot.Item.Latitude, 'f', -1, 64),
			strconv.FormatFloat(slot.Item.Longitude, 'f', -1, 64),
			strconv.FormatFloat(slot.Score, 'f', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return "", fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("failed to flush CSV: %w", err)
	}
	return path, nil
}
