package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/sandbox"
)

func (s *Server) adminListTasks(c *gin.Context) {
	tasks, err := s.store.Tasks()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// adminCreateTask accepts multipart form data so an attachment can ride
// along with the task fields.
func (s *Server) adminCreateTask(c *gin.Context) {
	task, err := s.bindTaskForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	id, err := s.store.AddTask(task)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) bindTaskForm(c *gin.Context) (*models.Task, error) {
	task := &models.Task{
		Title:       c.PostForm("title"),
		Difficulty:  c.PostForm("difficulty"),
		Topic:       c.PostForm("topic"),
		Description: c.PostForm("description"),
		CheckerCode: c.PostForm("checker_code"),
	}
	if file, header, err := c.Request.FormFile("attachment"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, err
		}
		task.Attachment = data
		task.FileFormat = fileExtension(header.Filename)
	}
	return task, nil
}

func (s *Server) adminTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	task, err := s.store.TaskByID(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             task.ID,
		"title":          task.Title,
		"difficulty":     task.Difficulty,
		"topic":          task.Topic,
		"description":    task.Description,
		"checker_code":   task.CheckerCode,
		"has_attachment": len(task.Attachment) > 0,
		"file_format":    task.FileFormat,
	})
}

func (s *Server) adminUpdateTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	task, err := s.bindTaskForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	task.ID = id
	if err := s.store.UpdateTask(task); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) adminDeleteTask(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if err := s.store.DeleteTask(id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) adminListTests(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	tests, err := s.store.TestsForTask(id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tests": tests})
}

func (s *Server) adminAddTest(c *gin.Context) {
	taskID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	var req struct {
		Input          string  `json:"input"`
		ExpectedOutput string  `json:"expected_output" binding:"required"`
		TimeLimit      float64 `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if req.TimeLimit <= 0 {
		req.TimeLimit = 1.0
	}
	test := &models.Test{TaskID: taskID, Input: req.Input, ExpectedOutput: req.ExpectedOutput, TimeLimit: req.TimeLimit}
	id, err := s.store.AddTest(test)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) adminUpdateTest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	var req struct {
		Input          string  `json:"input"`
		ExpectedOutput string  `json:"expected_output"`
		TimeLimit      float64 `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if err := s.store.UpdateTest(&models.Test{
		ID:             id,
		Input:          req.Input,
		ExpectedOutput: req.ExpectedOutput,
		TimeLimit:      req.TimeLimit,
	}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) adminDeleteTest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if err := s.store.DeleteTest(id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) adminCreateContest(c *gin.Context) {
	var req struct {
		Name            string   `json:"name" binding:"required"`
		TaskIDs         []int    `json:"task_ids" binding:"required"`
		DurationMinutes int      `json:"duration_minutes"`
		Scoring         string   `json:"scoring_type"`
		Mode            string   `json:"mode"`
		Languages       []string `json:"allowed_languages"`
		FreezeMinutes   int      `json:"freeze_minutes"`
		StartTime       string   `json:"start_time"`
		StartNow        bool     `json:"start_now"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	cfg := models.ContestConfig{
		DurationMinutes: req.DurationMinutes,
		Scoring:         models.ScoringMode(req.Scoring),
		Mode:            models.ContestMode(req.Mode),
		FreezeMinutes:   req.FreezeMinutes,
	}
	for _, l := range req.Languages {
		cfg.AllowedLanguages = append(cfg.AllowedLanguages, models.Language(l))
	}

	var start time.Time
	if req.StartTime != "" {
		t, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_start_time"})
			return
		}
		start = t
	}

	ct, err := s.mgr.Create(req.Name, req.TaskIDs, cfg, start)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.StartNow {
		if err := s.mgr.Start(ct.ID, time.Now()); err != nil {
			s.fail(c, err)
			return
		}
		s.hub.ContestStarted(ct.ID)
	}
	c.JSON(http.StatusCreated, gin.H{"contest_id": ct.ID, "status": ct.Status})
}

func (s *Server) adminStartContest(c *gin.Context) {
	id := c.Param("id")
	if err := s.mgr.Start(id, time.Now()); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.ContestStarted(id)
	c.JSON(http.StatusOK, gin.H{"status": "running"})
}

func (s *Server) adminFinishContest(c *gin.Context) {
	id := c.Param("id")
	if err := s.mgr.Finish(id); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.ContestFinished(id)
	c.JSON(http.StatusOK, gin.H{"status": "finished"})
}

func (s *Server) adminCloseContest(c *gin.Context) {
	id := c.Param("id")
	if err := s.mgr.Close(id); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.ContestFinished(id)
	c.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (s *Server) adminEditStartTime(c *gin.Context) {
	var req struct {
		StartTime string `json:"start_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_start_time"})
		return
	}
	if err := s.mgr.EditStartTime(c.Param("id"), start); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) adminDisqualify(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	id := c.Param("id")
	if err := s.mgr.Disqualify(id, req.ParticipantID); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.BroadcastBoard(id)
	c.JSON(http.StatusOK, gin.H{"status": "disqualified"})
}

func (s *Server) adminReveal(c *gin.Context) {
	id := c.Param("id")
	steps, final, err := s.mgr.Reveal(id, time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	s.hub.Reveal(id, steps, final)
	c.JSON(http.StatusOK, gin.H{"steps": steps, "board": final})
}

func (s *Server) adminScoreboard(c *gin.Context) {
	view, err := s.mgr.Snapshot(c.Param("id"), time.Now(), true)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) adminListWhitelist(c *gin.Context) {
	entries, err := s.store.WhitelistForContest(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"whitelist": entries})
}

func (s *Server) adminAddWhitelist(c *gin.Context) {
	var req struct {
		Nickname     string `json:"nickname" binding:"required"`
		Organization string `json:"organization"`
		Password     string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	entry := &models.WhitelistEntry{
		ContestID:    c.Param("id"),
		Nickname:     req.Nickname,
		Organization: req.Organization,
		Password:     req.Password,
	}
	if err := s.store.AddWhitelistEntry(entry); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": entry.ID})
}

func (s *Server) adminRemoveWhitelist(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	if err := s.store.RemoveWhitelistEntry(id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) adminArchive(c *gin.Context) {
	entries, err := s.store.ArchiveList()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contests": entries})
}

func (s *Server) adminArchiveView(c *gin.Context) {
	ct, results, err := s.store.ContestResults(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	rows := make([]gin.H, 0, len(results))
	for _, r := range results {
		rows = append(rows, gin.H{
			"participant_id": r.ParticipantID,
			"nickname":       r.Nickname,
			"organization":   r.Organization,
			"scores":         r.Scores,
			"total_score":    r.TotalScore,
			"total_penalty":  r.TotalPenalty,
			"solved_count":   r.SolvedCount,
			"disqualified":   r.Disqualified,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"contest_id":   ct.ID,
		"name":         ct.Name,
		"scoring_type": ct.Config.Scoring,
		"task_ids":     ct.TaskIDs,
		"results":      rows,
	})
}

func (s *Server) adminArchiveDelete(c *gin.Context) {
	if err := s.store.DeleteContest(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// adminAdhocRun executes code against a single ad-hoc input, for probing a
// sandbox image or a checker without a contest.
func (s *Server) adminAdhocRun(c *gin.Context) {
	var req struct {
		Language       string  `json:"language" binding:"required"`
		Code           string  `json:"code" binding:"required"`
		Input          string  `json:"input"`
		ExpectedOutput string  `json:"expected_output"`
		TimeLimit      float64 `json:"time_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	lang := models.Language(req.Language)
	if !sandbox.Supported(lang) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language_not_allowed"})
		return
	}
	if req.TimeLimit <= 0 {
		req.TimeLimit = 5.0
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	report, err := s.runner.Run(ctx, sandbox.Request{
		Language: lang,
		Code:     req.Code,
		Tests: []models.Test{{
			Input:          req.Input,
			ExpectedOutput: req.ExpectedOutput,
			TimeLimit:      req.TimeLimit,
		}},
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if report.Fatal {
		c.JSON(http.StatusOK, gin.H{"verdict": report.Verdict, "detail": report.Detail})
		return
	}

	out := gin.H{"results": report.Results}
	if req.ExpectedOutput != "" && len(report.Results) > 0 {
		out["matches"] = sandbox.TokensEqual(report.Results[0].Output, req.ExpectedOutput)
	}
	c.JSON(http.StatusOK, out)
}
