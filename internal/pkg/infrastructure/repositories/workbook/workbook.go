//Package workbook keeps devices and alerts in an .xlsx workbook with one
//sheet per record type. The first row of each sheet names the columns and
//every other row is one record, addressed by its position below the header.
package workbook

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/infrastructure/logging"
	signage "github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
	"github.com/xuri/excelize/v2"
)

const (
	DisplaysSheet = "Displays"
	AlertsSheet   = "Alerts"
)

var displayColumns = []string{
	"deviceId", "ipAddress", "location", "template", "theme", "slideId",
	"refreshInterval", "coordinates", "notes", "building", "displayname", "active",
}

var alertColumns = []string{
	"alertId", "name", "type", "priority", "buildings", "active",
	"expires", "slideId", "title", "text", "icon", "srpAction",
}

var expiryLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02"}

//Store is a Datastore backed by a workbook on disk. The file is re-read on
//every call so edits made outside the service are picked up. Calls are
//serialized; a context cancelled while a call waits for its turn fails it
//before the file is touched, but the file I/O itself cannot be cancelled.
type Store struct {
	mu   sync.Mutex
	path string
	log  logging.Logger
}

//NewStore opens the workbook at path, creating it with empty Displays and
//Alerts sheets when it does not exist yet.
func NewStore(path string, log logging.Logger) (*Store, error) {
	var f *excelize.File
	var err error

	_, statErr := os.Stat(path)
	created := os.IsNotExist(statErr)
	if created {
		log.Infof("creating workbook %s", path)
		f = excelize.NewFile()
	} else if f, err = excelize.OpenFile(path); err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	changed := false
	for _, s := range []struct {
		name    string
		columns []string
	}{{DisplaysSheet, displayColumns}, {AlertsSheet, alertColumns}} {
		index, err := f.GetSheetIndex(s.name)
		if err != nil {
			return nil, err
		}
		if index >= 0 {
			continue
		}

		if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("failed to add sheet %s: %w", s.name, err)
		}
		header := make([]interface{}, len(s.columns))
		for i, c := range s.columns {
			header[i] = c
		}
		if err := f.SetSheetRow(s.name, "A1", &header); err != nil {
			return nil, err
		}
		changed = true
	}

	if created {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, err
		}
		err = f.SaveAs(path)
	} else if changed {
		err = f.Save()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save workbook %s: %w", path, err)
	}

	return &Store{path: path, log: log}, nil
}

//table is one sheet read into memory. rows excludes the header row, so the
//record at rows[i] lives on sheet row i+2.
type table struct {
	sheet   string
	headers []string
	rows    [][]string
}

func (t *table) column(name string) int {
	for i, h := range t.headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

func (t *table) value(row []string, name string) string {
	i := t.column(name)
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

//find returns the logical index of the first record whose key column equals id, or -1
func (t *table) find(key, id string) int {
	for i, row := range t.rows {
		if t.value(row, key) == id {
			return i
		}
	}
	return -1
}

//encode lays values out in the sheet's own column order. Columns the sheet
//does not have are dropped and columns we do not know are left blank.
func (t *table) encode(values map[string]interface{}, previous []string) []interface{} {
	row := make([]interface{}, len(t.headers))
	for i, h := range t.headers {
		if v, ok := values[strings.ToLower(strings.TrimSpace(h))]; ok {
			row[i] = v
		} else if i < len(previous) {
			row[i] = previous[i]
		} else {
			row[i] = ""
		}
	}
	return row
}

func cellName(logicalIndex int) string {
	cell, _ := excelize.CoordinatesToCellName(1, logicalIndex+2)
	return cell
}

func (s *Store) read(ctx context.Context, sheet string, fn func(t *table) error) error {
	return s.open(ctx, sheet, false, func(f *excelize.File, t *table) error {
		return fn(t)
	})
}

func (s *Store) write(ctx context.Context, sheet string, fn func(f *excelize.File, t *table) error) error {
	return s.open(ctx, sheet, true, fn)
}

func (s *Store) open(ctx context.Context, sheet string, save bool, fn func(f *excelize.File, t *table) error) error {
	if err := ctx.Err(); err != nil {
		return signage.StoreUnavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return signage.StoreUnavailable(err)
	}

	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return signage.StoreUnavailable(fmt.Errorf("failed to open workbook: %w", err))
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return signage.StoreUnavailable(fmt.Errorf("failed to read sheet %s: %w", sheet, err))
	}

	t := &table{sheet: sheet}
	if len(rows) > 0 {
		t.headers = rows[0]
		t.rows = rows[1:]
	}

	if err := fn(f, t); err != nil {
		return signage.StoreUnavailable(err)
	}

	if save {
		if err := f.Save(); err != nil {
			return signage.StoreUnavailable(fmt.Errorf("failed to save workbook: %w", err))
		}
	}

	return nil
}

func parseBool(s string, fallback bool) bool {
	if s == "" {
		return fallback
	}
	return strings.EqualFold(s, "true")
}

func formatBool(b bool) string {
	return strings.ToUpper(strconv.FormatBool(b))
}
