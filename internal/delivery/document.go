package delivery

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RenderJSON is the machine-readable copy of the export.
func RenderJSON(p *Payload) (Attachment, error) {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Attachment{}, fmt.Errorf("render json: %w", err)
	}
	return Attachment{
		Filename:    p.BaseFilename() + ".json",
		ContentType: contentTypeJSON,
		Data:        b,
	}, nil
}

// RenderWorkbook writes a summary sheet plus one sheet per section.
func RenderWorkbook(p *Payload) (Attachment, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Attachment{}, fmt.Errorf("render workbook: %w", err)
	}

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return Attachment{}, fmt.Errorf("render workbook: %w", err)
	}
	rows := [][]interface{}{
		{"Owner", p.OwnerName},
		{"Email", p.OwnerEmail},
		{"Generated at", p.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Message", p.Message},
		{},
		{"Section", "Records", "Total", "Amount"},
	}
	for _, s := range p.Summary {
		if len(s.Totals) == 0 {
			rows = append(rows, []interface{}{s.Title, s.Count})
			continue
		}
		for i, t := range s.Totals {
			if i == 0 {
				rows = append(rows, []interface{}{s.Title, s.Count, t.Label, t.Amount.StringFixed(2)})
			} else {
				rows = append(rows, []interface{}{"", "", t.Label, t.Amount.StringFixed(2)})
			}
		}
	}
	if err := writeRows(f, summary, rows); err != nil {
		return Attachment{}, err
	}
	_ = f.SetRowStyle(summary, 6, 6, bold)
	_ = f.SetColWidth(summary, "A", "D", 22)

	// Excel compares sheet names case-insensitively.
	used := map[string]bool{strings.ToLower(summary): true}
	for _, s := range p.Summary {
		name := uniqueSheetName(s.Title, used)
		if _, err := f.NewSheet(name); err != nil {
			return Attachment{}, fmt.Errorf("render workbook: sheet %s: %w", name, err)
		}
		data := make([][]interface{}, 0, len(s.Rows)+1)
		header := make([]interface{}, len(s.Columns))
		for i, c := range s.Columns {
			header[i] = c
		}
		data = append(data, header)
		for _, r := range s.Rows {
			row := make([]interface{}, len(r))
			for i, v := range r {
				row[i] = v
			}
			data = append(data, row)
		}
		if err := writeRows(f, name, data); err != nil {
			return Attachment{}, err
		}
		_ = f.SetRowStyle(name, 1, 1, bold)
		if n := len(s.Columns); n > 0 {
			last, _ := excelize.ColumnNumberToName(n)
			_ = f.SetColWidth(name, "A", last, 18)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Attachment{}, fmt.Errorf("render workbook: %w", err)
	}
	return Attachment{
		Filename:    p.BaseFilename() + ".xlsx",
		ContentType: contentTypeXLSX,
		Data:        buf.Bytes(),
	}, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("render workbook: %w", err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("render workbook: %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// sheetName trims to Excel's 31 character limit and strips forbidden runes.
func sheetName(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
	}
	if len(out) > 31 {
		out = out[:31]
	}
	if len(out) == 0 {
		return "Data"
	}
	return string(out)
}

// uniqueSheetName is sheetName with a " (n)" suffix when the name is taken;
// NewSheet would otherwise hand back the existing sheet.
func uniqueSheetName(title string, used map[string]bool) string {
	base := sheetName(title)
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := []rune(fmt.Sprintf(" (%d)", n))
		r := []rune(base)
		if len(r)+len(suffix) > 31 {
			r = r[:31-len(suffix)]
		}
		name = string(r) + string(suffix)
	}
	used[strings.ToLower(name)] = true
	return name
}
