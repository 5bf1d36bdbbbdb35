// Package xlsx exports access rules to an Excel workbook and reads them back.
// Each rule kind gets its own sheet. Sheets can be protected so that the
// downloaded copy is read-only for dashboard users.
package xlsx

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// Sheet names per kind.
const (
	GlobalSheet    = "Data Access Schedules"
	ComponentSheet = "Component Access Controls"
)

// Header is the column layout shared by both sheets.
var Header = []string{
	"ID", "Name", "Display Name", "Component", "Scope", "Start", "End",
	"Timezone", "Days", "Enabled", "Condition", "Created",
}

// SheetFor returns the sheet name used for kind.
func SheetFor(kind schedule.Kind) string {
	if kind == schedule.KindComponent {
		return ComponentSheet
	}
	return GlobalSheet
}

// ExportOptions controls workbook output.
type ExportOptions struct {
	// Protect locks every sheet against editing.
	Protect bool
	// Password unlocks protected sheets. May be empty.
	Password string
}

// Export writes rules, grouped by kind, as an xlsx workbook to w.
func Export(w io.Writer, rules []schedule.AccessRule, opts ExportOptions) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", GlobalSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(ComponentSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	next := map[string]int{GlobalSheet: 2, ComponentSheet: 2}
	for _, sheet := range []string{GlobalSheet, ComponentSheet} {
		header := make([]any, len(Header))
		for i, h := range Header {
			header[i] = h
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
		if err := f.SetColWidth(sheet, "A", "L", 18); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	for _, r := range rules {
		sheet := SheetFor(r.Kind)
		cell, err := excelize.CoordinatesToCellName(1, next[sheet])
		if err != nil {
			return err
		}
		row := []any{
			r.ID, r.Name, r.DisplayName, r.Component, string(r.Scope), r.StartTime, r.EndTime,
			r.Timezone, strings.Join(r.AllowedDays, ", "), yesNo(r.Enabled), r.Condition,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write rule %s: %w", r.ID, err)
		}
		next[sheet]++
	}

	if opts.Protect {
		for _, sheet := range []string{GlobalSheet, ComponentSheet} {
			if err := f.ProtectSheet(sheet, &excelize.SheetProtectionOptions{
				AlgorithmName:       "SHA-512",
				Password:            opts.Password,
				SelectLockedCells:   true,
				SelectUnlockedCells: true,
			}); err != nil {
				return fmt.Errorf("protect %s: %w", sheet, err)
			}
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Import reads rules back from a workbook produced by Export. Missing
// sheets are skipped. Rows without a name are ignored.
func Import(data []byte) ([]schedule.AccessRule, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []schedule.AccessRule
	for _, kind := range schedule.Kinds {
		sheet := SheetFor(kind)
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			continue
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		cols := indexHeader(rows[0])
		for n, row := range rows[1:] {
			r, ok, err := parseRow(kind, cols, row)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %w", sheet, n+2, err)
			}
			if ok {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func indexHeader(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[normalizeHeader(h)] = i
	}
	return cols
}

func parseRow(kind schedule.Kind, cols map[string]int, row []string) (schedule.AccessRule, bool, error) {
	get := func(name string) string {
		idx, ok := cols[normalizeHeader(name)]
		if !ok {
			return ""
		}
		return cellValue(row, idx)
	}

	r := schedule.AccessRule{
		ID:          get("ID"),
		Name:        get("Name"),
		DisplayName: get("Display Name"),
		Kind:        kind,
		Component:   get("Component"),
		Scope:       schedule.Scope(strings.ToLower(get("Scope"))),
		StartTime:   get("Start"),
		EndTime:     get("End"),
		Timezone:    get("Timezone"),
		Condition:   get("Condition"),
	}
	if r.Name == "" {
		return r, false, nil
	}
	if days := get("Days"); days != "" {
		for _, d := range strings.Split(days, ",") {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				r.AllowedDays = append(r.AllowedDays, d)
			}
		}
	}
	switch strings.ToLower(get("Enabled")) {
	case "yes", "true", "1", "":
		r.Enabled = true
	case "no", "false", "0":
	default:
		return r, false, fmt.Errorf("invalid enabled value %q", get("Enabled"))
	}
	if created := get("Created"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return r, false, fmt.Errorf("invalid created time %q", created)
		}
		r.CreatedAt = t
	}
	return r, true, nil
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
