package leads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Inserter is the write side used by Import.
type Inserter interface {
	Insert(ctx context.Context, l Lead) (int64, error)
}

// ImportReport summarises one spreadsheet import.
type ImportReport struct {
	Rows             int      `json:"rows"`
	Inserted         int      `json:"inserted"`
	SkippedInvalid   int      `json:"skipped_invalid"`
	SkippedDuplicate int      `json:"skipped_duplicate"`
	Problems         []string `json:"problems,omitempty"`
}

var ErrMissingPhoneColumn = errors.New("leads: spreadsheet has no phone column")

// Header aliases, compared after lowercasing and trimming.
var columnAliases = map[string]string{
	"nombre":         "nombre",
	"name":           "nombre",
	"apellidos":      "apellidos",
	"apellido":       "apellidos",
	"telefono":       "telefono",
	"teléfono":       "telefono",
	"telefono1":      "telefono",
	"movil":          "telefono",
	"móvil":          "telefono",
	"phone":          "telefono",
	"telefono2":      "telefono2",
	"teléfono2":      "telefono2",
	"telefono 2":     "telefono2",
	"ciudad":         "ciudad",
	"poblacion":      "ciudad",
	"población":      "ciudad",
	"clinica":        "nombre_clinica",
	"clínica":        "nombre_clinica",
	"nombre_clinica": "nombre_clinica",
	"nombre clinica": "nombre_clinica",
}

// Import reads the first sheet of an .xlsx workbook. The first row is the
// header. Rows with an unusable phone or a phone already stored are skipped
// and counted; any other insert error aborts the import.
func Import(ctx context.Context, r io.Reader, sourceFile string, dst Inserter) (ImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return ImportReport{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return ImportReport{}, errors.New("leads: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return ImportReport{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return ImportReport{}, nil
	}

	cols := mapHeader(rows[0])
	if _, ok := cols["telefono"]; !ok {
		return ImportReport{}, ErrMissingPhoneColumn
	}

	var rep ImportReport
	seen := map[string]bool{}
	for i, row := range rows[1:] {
		line := i + 2
		cell := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if isBlank(row) {
			continue
		}
		rep.Rows++

		phone, err := NormalizePhone(cell("telefono"))
		if err != nil {
			rep.SkippedInvalid++
			rep.Problems = append(rep.Problems, fmt.Sprintf("row %d: invalid phone %q", line, cell("telefono")))
			continue
		}
		if seen[phone] {
			rep.SkippedDuplicate++
			continue
		}
		seen[phone] = true

		phone2 := ""
		if raw := cell("telefono2"); raw != "" {
			if p, err := NormalizePhone(raw); err == nil && p != phone {
				phone2 = p
			}
		}

		_, err = dst.Insert(ctx, Lead{
			Nombre:     cell("nombre"),
			Apellidos:  cell("apellidos"),
			Phone:      phone,
			Phone2:     phone2,
			City:       cell("ciudad"),
			Clinic:     cell("nombre_clinica"),
			SourceFile: sourceFile,
		})
		switch {
		case errors.Is(err, ErrDuplicatePhone):
			rep.SkippedDuplicate++
		case err != nil:
			return rep, fmt.Errorf("row %d: %w", line, err)
		default:
			rep.Inserted++
		}
	}
	return rep, nil
}

func mapHeader(header []string) map[string]int {
	cols := map[string]int{}
	for i, h := range header {
		name, ok := columnAliases[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			continue
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	return cols
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
