package sheet

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Contatos")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV_Comma(t *testing.T) {
	in := "Name,Phone,Email,Tags,Value\n" +
		"Ana,+55 11 98765-4321,ana@x.com,\"VIP, Lead\",\"1.234,50\"\n" +
		",,,,\n" +
		"Bia,11912345678,,,\n"

	recs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "1", recs[0].ID.String())
	assert.Equal(t, "Ana", recs[0].Name.String())
	assert.Equal(t, "+55 11 98765-4321", recs[0].Phone.String())
	assert.Equal(t, []string{"VIP, Lead"}, []string(recs[0].Tags))
	require.NotNil(t, recs[0].Value.Value)
	assert.InDelta(t, 1234.5, *recs[0].Value.Value, 0.001)

	// Row numbers follow the sheet, blank rows included.
	assert.Equal(t, "3", recs[1].ID.String())
	assert.Nil(t, recs[1].Tags)
	assert.Nil(t, recs[1].Value.Value)
}

func TestReadCSV_SemicolonPortugueseHeaders(t *testing.T) {
	in := "\ufeffNome;Telefone;Observações;Empresa;Cargo\n" +
		"João;5511987654321;cliente antigo;ACME;Diretor\n"

	recs, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "João", recs[0].Name.String())
	assert.Equal(t, "5511987654321", recs[0].Phone.String())
	assert.Equal(t, "cliente antigo", recs[0].Notes.String())
	assert.Equal(t, "ACME", recs[0].Organization.String())
	assert.Equal(t, "Diretor", recs[0].Position.String())
}

func TestReadCSV_IDColumn(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader("id,first_name,last_name\n42,Ana,Souza\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "42", recs[0].ID.String())
	assert.Equal(t, "Ana", recs[0].FirstName.String())
	assert.Equal(t, "Souza", recs[0].LastName.String())
}

func TestReadCSV_ShortRows(t *testing.T) {
	recs, err := ReadCSV(strings.NewReader("name,phone,email\nAna\n"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "", recs[0].Phone.String())
}

func TestFromRows_NoUsableHeader(t *testing.T) {
	_, err := FromRows([][]string{{"foo", "bar"}, {"1", "2"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name or phone column")

	_, err = FromRows(nil)
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Nome", "Celular", "Etiquetas"},
		{"Ana", "5511987654321", "VIP;Lead"},
		{"Bia", "5521912345678", ""},
	})

	recs, err := Read(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Ana", recs[0].Name.String())
	assert.Equal(t, []string{"VIP;Lead"}, []string(recs[0].Tags))
	assert.Equal(t, "5521912345678", recs[1].Phone.String())
}

func TestRead_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,phone\nAna,5511987654321\n"), 0o644))

	recs, err := Read(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestRead_Unsupported(t *testing.T) {
	_, err := Read("contacts.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestFoldHeader(t *testing.T) {
	assert.Equal(t, "observacoes", foldHeader("  Observações "))
	assert.Equal(t, "first name", foldHeader("First_Name"))
	assert.Equal(t, "e-mail", foldHeader("E-mail"))
}
