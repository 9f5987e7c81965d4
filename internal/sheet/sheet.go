// Package sheet reads contact spreadsheets (CSV or XLSX) into raw import
// records. The first row is the header; columns are matched by name.
package sheet

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/crm-import/internal/model"
)

type field int

const (
	fieldID field = iota
	fieldName
	fieldFirstName
	fieldLastName
	fieldEmail
	fieldPhone
	fieldTags
	fieldPosition
	fieldNotes
	fieldValue
	fieldCompany
)

// headerAliases maps a folded header to its field. English and Portuguese
// export headers are both accepted.
var headerAliases = map[string]field{
	"id":            fieldID,
	"name":          fieldName,
	"nome":          fieldName,
	"full name":     fieldName,
	"nome completo": fieldName,
	"first name":    fieldFirstName,
	"primeiro nome": fieldFirstName,
	"last name":     fieldLastName,
	"sobrenome":     fieldLastName,
	"email":         fieldEmail,
	"e-mail":        fieldEmail,
	"phone":         fieldPhone,
	"telefone":      fieldPhone,
	"celular":       fieldPhone,
	"whatsapp":      fieldPhone,
	"mobile":        fieldPhone,
	"tags":          fieldTags,
	"etiquetas":     fieldTags,
	"position":      fieldPosition,
	"cargo":         fieldPosition,
	"notes":         fieldNotes,
	"observacoes":   fieldNotes,
	"notas":         fieldNotes,
	"value":         fieldValue,
	"valor":         fieldValue,
	"company":       fieldCompany,
	"empresa":       fieldCompany,
	"organization":  fieldCompany,
}

// Read parses the file at path, choosing the format by extension.
func Read(path string) ([]model.RawContactRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "sheet: open file")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(f)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, eris.Errorf("sheet: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses comma or semicolon separated input. The delimiter is taken
// from the header line.
func ReadCSV(r io.Reader) ([]model.RawContactRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: read csv")
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "sheet: parse csv")
	}
	return FromRows(rows)
}

// ReadXLSX parses the first sheet of an XLSX workbook.
func ReadXLSX(path string) ([]model.RawContactRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("sheet: workbook has no sheets")
	}

	sh := f.Sheets[0]
	rows := make([][]string, 0, len(sh.Rows))
	for _, row := range sh.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return FromRows(rows)
}

// FromRows maps header-first rows to records. Blank rows are skipped and
// unknown columns ignored. A missing id column numbers records from 1.
func FromRows(rows [][]string) ([]model.RawContactRecord, error) {
	if len(rows) == 0 {
		return nil, eris.New("sheet: no header row")
	}

	columns := make(map[field]int)
	for i, h := range rows[0] {
		if f, ok := headerAliases[foldHeader(h)]; ok {
			if _, dup := columns[f]; !dup {
				columns[f] = i
			}
		}
	}
	_, hasName := columns[fieldName]
	_, hasFirst := columns[fieldFirstName]
	_, hasPhone := columns[fieldPhone]
	if !hasName && !hasFirst && !hasPhone {
		return nil, eris.New("sheet: header has no name or phone column")
	}
	_, hasID := columns[fieldID]

	out := make([]model.RawContactRecord, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		get := func(f field) string {
			i, ok := columns[f]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec := model.RawContactRecord{
			ID:           model.LooseString(get(fieldID)),
			Name:         model.LooseString(get(fieldName)),
			FirstName:    model.LooseString(get(fieldFirstName)),
			LastName:     model.LooseString(get(fieldLastName)),
			Email:        model.LooseString(get(fieldEmail)),
			Phone:        model.LooseString(get(fieldPhone)),
			Position:     model.LooseString(get(fieldPosition)),
			Notes:        model.LooseString(get(fieldNotes)),
			Organization: model.LooseString(get(fieldCompany)),
			Value:        model.LooseNumber{Value: model.ParseNumber(get(fieldValue))},
		}
		if !hasID {
			rec.ID = model.LooseString(strconv.Itoa(n + 1))
		}
		if tags := get(fieldTags); tags != "" {
			rec.Tags = model.TagList{tags}
		}
		out = append(out, rec)
	}
	return out, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldHeader(h string) string {
	folded, _, err := transform.String(stripMarks, h)
	if err != nil {
		folded = h
	}
	folded = strings.ToLower(strings.Join(strings.Fields(folded), " "))
	return strings.ReplaceAll(folded, "_", " ")
}

func detectDelimiter(text string) rune {
	header, _, _ := strings.Cut(text, "\n")
	if strings.Count(header, ";") > strings.Count(header, ",") {
		return ';'
	}
	return ','
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
