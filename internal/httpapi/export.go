package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"dev.synaq.judge/internal/models"
)

// adminExportResults streams a contest's final standings as a spreadsheet.
// Under icpc scoring each task cell uses the classic notation: "+" for a
// first-try solve, "+k" after k failed attempts, "-k" for k futile attempts
// and "." for an untouched task.
func (s *Server) adminExportResults(c *gin.Context) {
	contestID := c.Param("id")
	ct, results, err := s.store.ContestResults(contestID)
	if err != nil {
		s.fail(c, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Results"
	f.SetSheetName("Sheet1", sheet)

	icpc := ct.Config.Scoring == models.ScoringICPC
	header := []any{"Place", "Nickname", "Organization"}
	for i := range ct.TaskIDs {
		header = append(header, taskColumnName(i))
	}
	if icpc {
		header = append(header, "Solved", "Penalty")
	} else {
		header = append(header, "Total")
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		s.fail(c, err)
		return
	}

	for i, r := range results {
		row := []any{i + 1, r.Nickname, r.Organization}
		for _, tid := range ct.TaskIDs {
			row = append(row, resultCell(r.Scores[tid], icpc))
		}
		if icpc {
			row = append(row, r.SolvedCount, r.TotalPenalty)
		} else {
			row = append(row, r.TotalScore)
		}
		if r.Disqualified {
			row[0] = "DQ"
		}
		cell := "A" + strconv.Itoa(i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			s.fail(c, err)
			return
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		s.fail(c, err)
		return
	}

	name := ct.Name
	if name == "" {
		name = contestID
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-results.xlsx"`, name))
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		buf.Bytes())
}

// taskColumnName labels tasks A, B, ... in contest order.
func taskColumnName(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return string(rune('A'+i/26-1)) + string(rune('A'+i%26))
}

func resultCell(cell *models.TaskScore, icpc bool) any {
	if cell == nil {
		if icpc {
			return "."
		}
		return 0
	}
	if !icpc {
		return cell.Score
	}
	switch {
	case cell.Passed && cell.Attempts == 0:
		return "+"
	case cell.Passed:
		return "+" + strconv.Itoa(cell.Attempts)
	case cell.Attempts > 0:
		return "-" + strconv.Itoa(cell.Attempts)
	default:
		return "."
	}
}
