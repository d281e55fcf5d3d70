package httpapi

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/store"
)

func fileExtension(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	return strings.ToLower(ext)
}

// adminImportTests bulk-loads tests for one task from an uploaded file.
// Spreadsheets carry input in column A and expected output in column B; zip
// archives carry numbered test pairs.
func (s *Server) adminImportTests(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if _, err := s.store.TaskByID(taskID); err != nil {
		s.fail(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(c, err)
		return
	}

	timeLimit := 1.0
	if v := c.PostForm("time_limit"); v != "" {
		if tl, err := strconv.ParseFloat(v, 64); err == nil && tl > 0 {
			timeLimit = tl
		}
	}

	var tests []models.Test
	switch fileExtension(header.Filename) {
	case "xlsx":
		tests, err = parseTestsXLSX(data, taskID, timeLimit)
	case "zip":
		tests, err = parseTestsZip(data, taskID, timeLimit)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_format"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parse_failed", "detail": err.Error()})
		return
	}
	if len(tests) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no_tests_found"})
		return
	}

	added := 0
	for i := range tests {
		if _, err := s.store.AddTest(&tests[i]); err != nil {
			s.fail(c, err)
			return
		}
		added++
	}
	c.JSON(http.StatusOK, gin.H{"imported": added})
}

func parseTestsXLSX(data []byte, taskID int, timeLimit float64) ([]models.Test, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet: %w", err)
	}

	var tests []models.Test
	for i, row := range rows {
		var input, output string
		if len(row) > 0 {
			input = row[0]
		}
		if len(row) > 1 {
			output = row[1]
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(input), "input") {
			continue
		}
		if strings.TrimSpace(input) == "" && strings.TrimSpace(output) == "" {
			continue
		}
		tests = append(tests, models.Test{
			TaskID:         taskID,
			Input:          input,
			ExpectedOutput: output,
			TimeLimit:      timeLimit,
		})
	}
	return tests, nil
}

type testPair struct {
	num    int
	input  string
	output string
	hasIn  bool
	hasOut bool
}

// parseTestsZip accepts two archive layouts: bare numbered files where test
// NN pairs with its answer NN.a, and input_X/output_X pairs. Tests come out
// ordered by their number.
func parseTestsZip(data []byte, taskID int, timeLimit float64) ([]models.Test, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	pairs := make(map[int]*testPair)
	get := func(num int) *testPair {
		p, ok := pairs[num]
		if !ok {
			p = &testPair{num: num}
			pairs[num] = p
		}
		return p
	}

	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		name := path.Base(zf.Name)
		if strings.HasPrefix(name, ".") {
			continue
		}

		var (
			num    int
			isIn   bool
			parsed bool
		)
		switch {
		case strings.HasSuffix(name, ".a"):
			if n, err := strconv.Atoi(strings.TrimSuffix(name, ".a")); err == nil {
				num, isIn, parsed = n, false, true
			}
		case strings.HasPrefix(name, "input_"):
			if n, err := leadingInt(strings.TrimPrefix(name, "input_")); err == nil {
				num, isIn, parsed = n, true, true
			}
		case strings.HasPrefix(name, "output_"):
			if n, err := leadingInt(strings.TrimPrefix(name, "output_")); err == nil {
				num, isIn, parsed = n, false, true
			}
		default:
			if n, err := strconv.Atoi(name); err == nil {
				num, isIn, parsed = n, true, true
			}
		}
		if !parsed {
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", zf.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", zf.Name, err)
		}

		p := get(num)
		if isIn {
			p.input, p.hasIn = string(content), true
		} else {
			p.output, p.hasOut = string(content), true
		}
	}

	ordered := make([]*testPair, 0, len(pairs))
	for _, p := range pairs {
		if p.hasIn && p.hasOut {
			ordered = append(ordered, p)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].num < ordered[j].num })

	tests := make([]models.Test, 0, len(ordered))
	for _, p := range ordered {
		tests = append(tests, models.Test{
			TaskID:         taskID,
			Input:          p.input,
			ExpectedOutput: p.output,
			TimeLimit:      timeLimit,
		})
	}
	return tests, nil
}

// leadingInt parses the integer prefix of a string, so "3.txt" yields 3.
func leadingInt(s string) (int, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no leading integer in %q", s)
	}
	return strconv.Atoi(s[:end])
}

// adminImportWhitelist bulk-loads a closed-contest roster from a spreadsheet
// with nickname, organization and password columns.
func (s *Server) adminImportWhitelist(c *gin.Context) {
	contestID := c.Param("id")

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(c, err)
		return
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parse_failed"})
		return
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parse_failed"})
		return
	}

	added, skipped := 0, 0
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		nickname := strings.TrimSpace(row[0])
		if nickname == "" {
			continue
		}
		if i == 0 && strings.EqualFold(nickname, "nickname") {
			continue
		}
		var organization, password string
		if len(row) > 1 {
			organization = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			password = strings.TrimSpace(row[2])
		}
		if password == "" {
			skipped++
			continue
		}

		err := s.store.AddWhitelistEntry(&models.WhitelistEntry{
			ContestID:    contestID,
			Nickname:     nickname,
			Organization: organization,
			Password:     password,
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, store.ErrDuplicateEntry):
			skipped++
		default:
			s.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "skipped": skipped})
}
