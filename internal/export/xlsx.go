package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"rdw-proxy/internal/domain/vehicle"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	sheetVehicle  = "Voertuig"
	sheetFuel     = "Brandstof"
	sheetBody     = "Carrosserie"
	sheetBodySpec = "Carrosserie specificatie"
)

// WriteXLSX renders rec as a workbook: one key/value sheet per object dataset
// and one table sheet for the fuel rows.
func WriteXLSX(w io.Writer, rec *vehicle.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetVehicle); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeKeyValues(f, sheetVehicle, rec.Vehicle); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetFuel); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheetFuel, err)
	}
	if err := writeTable(f, sheetFuel, rec.Fuel); err != nil {
		return err
	}

	optional := []struct {
		name string
		row  vehicle.Row
	}{
		{sheetBody, rec.Body},
		{sheetBodySpec, rec.BodySpec},
	}
	for _, sheet := range optional {
		if sheet.row == nil {
			continue
		}
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet.name, err)
		}
		if err := writeKeyValues(f, sheet.name, sheet.row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeKeyValues(f *excelize.File, sheet string, row vehicle.Row) error {
	if err := f.SetSheetRow(sheet, "A1", &[]any{"veld", "waarde"}); err != nil {
		return fmt.Errorf("write header %s: %w", sheet, err)
	}
	for i, key := range sortedKeys(row) {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &[]any{key, fmt.Sprint(row[key])}); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, rows []vehicle.Row) error {
	columns := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			columns[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(columns))
	for k := range columns {
		header = append(header, k)
	}
	sort.Strings(header)

	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header %s: %w", sheet, err)
	}
	for i, row := range rows {
		values := make([]any, len(header))
		for j, col := range header {
			if v, ok := row[col]; ok {
				values[j] = fmt.Sprint(v)
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

func sortedKeys(row vehicle.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
