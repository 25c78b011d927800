package analysis

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// ProfileXLSX profiles one sheet of a .xlsx workbook. opt.Sheet selects by
// name; otherwise opt.SheetIndex (1-based, default 1) selects by sheetId.
func ProfileXLSX(file string, opt Options) (*Dataset, error) {
	wb, err := openWorkbook(file)
	if err != nil {
		return nil, err
	}
	defer wb.Close()

	rows, err := wb.sheet(opt.Sheet, opt.SheetIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return profileRecords(filepath.Base(file), rows, opt)
}

// SheetNames lists the sheets of a workbook in order.
func SheetNames(file string) ([]string, error) {
	wb, err := openWorkbook(file)
	if err != nil {
		return nil, err
	}
	defer wb.Close()
	return wb.names(), nil
}

// workbook is an opened .xlsx package with its sheet index resolved.
type workbook struct {
	rc      *zip.ReadCloser
	name    string
	files   map[string]*zip.File
	sheets  []sheetEntry
	targets map[string]string
}

type sheetEntry struct {
	Name    string `xml:"name,attr"`
	SheetID int    `xml:"sheetId,attr"`
	RelID   string `xml:"id,attr"`
}

func openWorkbook(file string) (*workbook, error) {
	rc, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	wb := &workbook{
		rc:      rc,
		name:    filepath.Base(file),
		files:   make(map[string]*zip.File, len(rc.File)),
		targets: map[string]string{},
	}
	for _, f := range rc.File {
		wb.files[f.Name] = f
	}

	var index struct {
		Sheets []sheetEntry `xml:"sheets>sheet"`
	}
	if err := wb.decode("xl/workbook.xml", &index); err != nil {
		rc.Close()
		return nil, err
	}
	wb.sheets = index.Sheets

	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := wb.decode("xl/_rels/workbook.xml.rels", &rels); err != nil {
		rc.Close()
		return nil, err
	}
	for _, r := range rels.Items {
		if r.ID != "" && r.Target != "" {
			wb.targets[r.ID] = normalizeRelPath(r.Target)
		}
	}
	return wb, nil
}

func (wb *workbook) Close() error { return wb.rc.Close() }

// decode unmarshals a package part into v. A missing part leaves v untouched.
func (wb *workbook) decode(part string, v any) error {
	f, ok := wb.files[part]
	if !ok {
		return nil
	}
	r, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", part, err)
	}
	defer r.Close()
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("parse %s in %s: %w", part, wb.name, err)
	}
	return nil
}

func (wb *workbook) names() []string {
	out := make([]string, 0, len(wb.sheets))
	for _, s := range wb.sheets {
		out = append(out, s.Name)
	}
	return out
}

// resolve maps a sheet selection to its worksheet part.
func (wb *workbook) resolve(sheetName string, sheetIndex int) (string, error) {
	if sheetName != "" {
		for _, s := range wb.sheets {
			if strings.EqualFold(s.Name, sheetName) {
				if t, ok := wb.targets[s.RelID]; ok {
					return t, nil
				}
				break
			}
		}
		return "", fmt.Errorf("sheet '%s' not found in workbook '%s'.\nAvailable sheets: %s",
			sheetName, wb.name, strings.Join(wb.names(), ", "))
	}
	if sheetIndex <= 0 {
		sheetIndex = 1
	}
	for _, s := range wb.sheets {
		if s.SheetID != sheetIndex {
			continue
		}
		if t, ok := wb.targets[s.RelID]; ok {
			return t, nil
		}
	}
	// Workbooks without relationships still follow the sheetN.xml naming.
	return path.Join("xl", "worksheets", fmt.Sprintf("sheet%d.xml", sheetIndex)), nil
}

func (wb *workbook) sheet(sheetName string, sheetIndex int) (*rowStream, error) {
	part, err := wb.resolve(sheetName, sheetIndex)
	if err != nil {
		return nil, err
	}
	f, ok := wb.files[part]
	if !ok {
		return nil, fmt.Errorf("sheet %q missing from workbook '%s'", part, wb.name)
	}

	var sst struct {
		Items []richText `xml:"si"`
	}
	if err := wb.decode("xl/sharedStrings.xml", &sst); err != nil {
		return nil, err
	}
	shared := make([]string, len(sst.Items))
	for i, it := range sst.Items {
		shared[i] = it.String()
	}

	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", part, err)
	}
	return &rowStream{r: r, dec: xml.NewDecoder(r), shared: shared}, nil
}

// richText is a shared or inline string: plain <t> or a list of <r><t> runs.
// Phonetic hints (<rPh>) are ignored.
type richText struct {
	Text string `xml:"t"`
	Runs []struct {
		Text string `xml:"t"`
	} `xml:"r"`
}

func (rt richText) String() string {
	if len(rt.Runs) == 0 {
		return rt.Text
	}
	var b strings.Builder
	b.WriteString(rt.Text)
	for _, run := range rt.Runs {
		b.WriteString(run.Text)
	}
	return b.String()
}

type sheetRow struct {
	Cells []sheetCell `xml:"c"`
}

type sheetCell struct {
	Ref    string   `xml:"r,attr"`
	Type   string   `xml:"t,attr"`
	Value  string   `xml:"v"`
	Inline richText `xml:"is"`
}

// rowStream decodes one <row> element at a time so large sheets are never
// held in memory.
type rowStream struct {
	r      io.ReadCloser
	dec    *xml.Decoder
	shared []string
}

func (s *rowStream) Close() error { return s.r.Close() }

// next returns the cells of the next row, placed by their column reference.
// It returns io.EOF after the last row.
func (s *rowStream) next() ([]string, error) {
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "row" {
			continue
		}
		var row sheetRow
		if err := s.dec.DecodeElement(&row, &start); err != nil {
			return nil, err
		}
		return s.cells(row), nil
	}
}

func (s *rowStream) cells(row sheetRow) []string {
	var out []string
	col := -1
	for _, c := range row.Cells {
		if idx := colIndexFromRef(c.Ref); idx >= 0 {
			col = idx
		} else {
			col++
		}
		for len(out) <= col {
			out = append(out, "")
		}
		out[col] = s.value(c)
	}
	return out
}

func (s *rowStream) value(c sheetCell) string {
	switch c.Type {
	case "s":
		i, err := strconv.Atoi(strings.TrimSpace(c.Value))
		if err != nil || i < 0 || i >= len(s.shared) {
			return ""
		}
		return s.shared[i]
	case "inlineStr":
		return c.Inline.String()
	case "b":
		if strings.TrimSpace(c.Value) == "1" {
			return "true"
		}
		return "false"
	default:
		return c.Value
	}
}

// colIndexFromRef turns a cell reference such as "C12" into a 0-based
// column index. It returns -1 when ref carries no column letters.
func colIndexFromRef(ref string) int {
	n := 0
	for _, r := range strings.ToUpper(ref) {
		if r < 'A' || r > 'Z' {
			break
		}
		n = n*26 + int(r-'A') + 1
	}
	return n - 1
}

// normalizeRelPath turns a relationship target into a package part name.
// Targets are relative to xl/ and may carry a leading slash; part names never do.
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if !strings.HasPrefix(rel, "xl/") {
		rel = path.Join("xl", rel)
	}
	return path.Clean(rel)
}
