package httpapi

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestParseTestsZipNumberedPairs(t *testing.T) {
	data := buildZip(t, map[string]string{
		"01":   "1 2\n",
		"01.a": "3\n",
		"10":   "5 5\n",
		"10.a": "10\n",
		"02":   "2 2\n",
		"02.a": "4\n",
	})

	tests, err := parseTestsZip(data, 7, 2.0)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	// Ordered by test number, not lexically.
	assert.Equal(t, "1 2\n", tests[0].Input)
	assert.Equal(t, "4\n", tests[1].ExpectedOutput)
	assert.Equal(t, "5 5\n", tests[2].Input)
	assert.Equal(t, 7, tests[0].TaskID)
	assert.Equal(t, 2.0, tests[0].TimeLimit)
}

func TestParseTestsZipInputOutputPairs(t *testing.T) {
	data := buildZip(t, map[string]string{
		"tests/input_1.txt":  "a\n",
		"tests/output_1.txt": "A\n",
		"tests/input_2.txt":  "b\n",
		"tests/output_2.txt": "B\n",
	})

	tests, err := parseTestsZip(data, 1, 1.0)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "a\n", tests[0].Input)
	assert.Equal(t, "B\n", tests[1].ExpectedOutput)
}

func TestParseTestsZipSkipsUnpairedAndJunk(t *testing.T) {
	data := buildZip(t, map[string]string{
		"01":        "in\n",
		"01.a":      "out\n",
		"02":        "orphan input\n",
		"03.a":      "orphan answer\n",
		"readme.md": "ignore me",
		".DS_Store": "junk",
	})

	tests, err := parseTestsZip(data, 1, 1.0)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "in\n", tests[0].Input)
}

func TestParseTestsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Input", "Output"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"1 2", "3"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"4 5", "9"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tests, err := parseTestsXLSX(buf.Bytes(), 3, 1.5)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "1 2", tests[0].Input)
	assert.Equal(t, "9", tests[1].ExpectedOutput)
	assert.Equal(t, 1.5, tests[1].TimeLimit)
}

func TestLeadingInt(t *testing.T) {
	n, err := leadingInt("3.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = leadingInt("12")
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	_, err = leadingInt("abc")
	assert.Error(t, err)
}

func TestFileExtension(t *testing.T) {
	assert.Equal(t, "xlsx", fileExtension("tests.XLSX"))
	assert.Equal(t, "zip", fileExtension("archive.zip"))
	assert.Equal(t, "", fileExtension("noext"))
}
