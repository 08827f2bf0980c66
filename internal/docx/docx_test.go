package docx

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pwsvc/internal/extract"
)

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
  <w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/></w:style>
  <w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/></w:style>
  <w:style w:type="paragraph" w:styleId="berschrift3"><w:name w:val="heading 3"/></w:style>
  <w:style w:type="character" w:styleId="Strong"><w:name w:val="Strong"/></w:style>
</w:styles>`

func para(style string, runs ...string) string {
	var b strings.Builder
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	for _, r := range runs {
		b.WriteString("<w:r><w:t xml:space=\"preserve\">" + r + "</w:t></w:r>")
	}
	b.WriteString("</w:p>")
	return b.String()
}

func documentXML(body ...string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		strings.Join(body, "") +
		`<w:sectPr/></w:body></w:document>`
}

func buildDocx(t *testing.T, parts map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range parts {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParse_MapsHeadingStyles(t *testing.T) {
	data := buildDocx(t, map[string]string{
		documentPart: documentXML(
			para("Heading1", "20251221"),
			para("Heading2", "Project ", "Alpha"),
			para("berschrift3", "Detail"),
			para("", "Did a thing"),
			para("Normal", "Another thing"),
		),
		stylesPart: stylesXML,
	})

	blocks, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, []extract.Block{
		{Role: extract.TopHeading, Text: "20251221"},
		{Role: extract.SubHeading, Text: "Project Alpha", Level: 2},
		{Role: extract.SubHeading, Text: "Detail", Level: 3},
		{Role: extract.Body, Text: "Did a thing"},
		{Role: extract.Body, Text: "Another thing"},
	}, blocks)
}

func TestParse_WithoutStylesUsesStyleIDs(t *testing.T) {
	data := buildDocx(t, map[string]string{
		documentPart: documentXML(
			para("Heading1", "20251221"),
			para("Heading2", "Sub"),
		),
	})

	blocks, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, extract.TopHeading, blocks[0].Role)
	assert.Equal(t, extract.SubHeading, blocks[1].Role)
}

func TestParse_SkipsTablesAndTextBoxes(t *testing.T) {
	table := `<w:tbl><w:tr><w:tc>` + para("", "cell") + `</w:tc></w:tr></w:tbl>`
	withBox := `<w:p><w:r><w:t>outer</w:t></w:r><w:r><w:pict><w:txbxContent>` +
		para("", "boxed") + `</w:txbxContent></w:pict></w:r></w:p>`

	data := buildDocx(t, map[string]string{
		documentPart: documentXML(para("", "before"), table, withBox, para("", "after")),
	})

	paras, err := ReadParagraphs(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var texts []string
	for _, p := range paras {
		texts = append(texts, p.Text)
	}
	assert.Equal(t, []string{"before", "outer", "after"}, texts)
}

func TestParse_TabsAndBreaks(t *testing.T) {
	body := `<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`
	data := buildDocx(t, map[string]string{documentPart: documentXML(body)})

	blocks, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, "a\tb\nc", blocks[0].Text)
}

func TestParse_EmptyParagraphsArePreserved(t *testing.T) {
	data := buildDocx(t, map[string]string{
		documentPart: documentXML(para("", "x"), `<w:p/>`, para("", "y")),
	})

	blocks, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	assert.Equal(t, "", blocks[1].Text)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("not a zip"))
	assert.Error(t, err)

	data := buildDocx(t, map[string]string{"other.xml": "<x/>"})
	_, err = Parse(data)
	assert.ErrorIs(t, err, ErrNotDocx)

	data = buildDocx(t, map[string]string{documentPart: "<w:document><w:body><w:p>"})
	_, err = Parse(data)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LEFT-OFF.docx")
	data := buildDocx(t, map[string]string{documentPart: documentXML(para("Heading1", "20251221"))})
	require.NoError(t, os.WriteFile(path, data, 0644))

	blocks, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []extract.Block{{Role: extract.TopHeading, Text: "20251221"}}, blocks)

	_, err = Load(filepath.Join(t.TempDir(), "missing.docx"))
	assert.Error(t, err)
}
