package analysis

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRelPath(t *testing.T) {
	for in, want := range map[string]string{
		"/xl/worksheets/sheet1.xml": "xl/worksheets/sheet1.xml",
		"xl/worksheets/sheet1.xml":  "xl/worksheets/sheet1.xml",
		"/worksheets/sheet1.xml":    "xl/worksheets/sheet1.xml",
		"worksheets/sheet1.xml":     "xl/worksheets/sheet1.xml",
		"worksheets/../styles.xml":  "xl/styles.xml",
		"/xl/styles.xml":            "xl/styles.xml",
	} {
		assert.Equal(t, want, normalizeRelPath(in), in)
	}
}

func TestColIndexFromRef(t *testing.T) {
	for ref, want := range map[string]int{"A1": 0, "C12": 2, "Z3": 25, "AA10": 26, "ab7": 27, "": -1, "12": -1} {
		assert.Equal(t, want, colIndexFromRef(ref), ref)
	}
}

const (
	crmWorkbook = `<?xml version="1.0" encoding="UTF-8"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
<sheets><sheet name="Leads" sheetId="1" r:id="rId1"/><sheet name="Notes" sheetId="2" r:id="rId2"/></sheets>
</workbook>`
	crmRels = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="worksheet" Target="worksheets/sheet1.xml"/>
<Relationship Id="rId2" Type="worksheet" Target="/xl/worksheets/sheet2.xml"/>
</Relationships>`
	crmShared = `<?xml version="1.0" encoding="UTF-8"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="4" uniqueCount="4">
<si><t>lead_id</t></si>
<si><t>entrada</t></si>
<si><r><t>ven</t></r><r><rPr><b/></rPr><t>da</t></r></si>
<si><t>ana</t><rPh><t>ANA</t></rPh></si>
</sst>`
	crmLeads = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>
<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c><c r="C1" t="s"><v>2</v></c><c r="D1" t="inlineStr"><is><t>vendedor</t></is></c></row>
<row r="2"><c r="A2"><v>1</v></c><c r="B2" t="b"><v>1</v></c><c r="D2" t="s"><v>3</v></c></row>
<row r="3"><c><v>2</v></c><c t="b"><v>0</v></c><c t="b"><v>1</v></c><c t="s"><v>99</v></c></row>
</sheetData></worksheet>`
	crmNotes = `<?xml version="1.0" encoding="UTF-8"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData/></worksheet>`
)

func writeWorkbook(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func crmParts() map[string]string {
	return map[string]string{
		"xl/workbook.xml":            crmWorkbook,
		"xl/_rels/workbook.xml.rels": crmRels,
		"xl/sharedStrings.xml":       crmShared,
		"xl/worksheets/sheet1.xml":   crmLeads,
		"xl/worksheets/sheet2.xml":   crmNotes,
	}
}

func TestRowStreamCellTypes(t *testing.T) {
	wb, err := openWorkbook(writeWorkbook(t, "leads.xlsx", crmParts()))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.sheet("leads", 0)
	require.NoError(t, err)
	defer rows.Close()

	var got [][]string
	for {
		row, err := rows.next()
		if err != nil {
			break
		}
		got = append(got, row)
	}
	assert.Equal(t, [][]string{
		{"lead_id", "entrada", "venda", "vendedor"},
		{"1", "true", "", "ana"},
		{"2", "false", "true", ""},
	}, got)
}

func TestProfileXLSXSelection(t *testing.T) {
	path := writeWorkbook(t, "leads.xlsx", crmParts())

	ds, err := ProfileXLSX(path, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows)
	require.Len(t, ds.Columns, 4)
	assert.Equal(t, "venda", ds.Columns[2].Name)

	opt := DefaultOptions()
	opt.SheetIndex = 2
	empty, err := ProfileXLSX(path, opt)
	require.NoError(t, err)
	assert.Zero(t, empty.Rows)
	assert.Empty(t, empty.Columns)

	opt = DefaultOptions()
	opt.Sheet = "Pipeline"
	_, err = ProfileXLSX(path, opt)
	assert.ErrorContains(t, err, "Available sheets: Leads, Notes")

	opt = DefaultOptions()
	opt.SheetIndex = 7
	_, err = ProfileXLSX(path, opt)
	assert.ErrorContains(t, err, "sheet7.xml")

	names, err := SheetNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Leads", "Notes"}, names)
}

func TestProfileXLSXWithoutRelationships(t *testing.T) {
	parts := crmParts()
	delete(parts, "xl/_rels/workbook.xml.rels")
	ds, err := ProfileXLSX(writeWorkbook(t, "leads.xlsx", parts), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Rows)
}

func TestProfileXLSXRejectsNonZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("lead_id,entrada\n1,1\n"), 0o644))
	_, err := ProfileXLSX(path, DefaultOptions())
	assert.ErrorContains(t, err, "open xlsx")
}
