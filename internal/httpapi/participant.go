package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dev.synaq.judge/internal/dispatch"
	"dev.synaq.judge/internal/models"
	"dev.synaq.judge/internal/sandbox"
)

func (s *Server) listContests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contests": s.mgr.List(time.Now())})
}

func (s *Server) contestInfo(c *gin.Context) {
	desc, err := s.mgr.Describe(c.Param("id"), time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (s *Server) join(c *gin.Context) {
	var req struct {
		Nickname     string `json:"nickname" binding:"required"`
		Organization string `json:"organization"`
		Password     string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	pid, err := s.mgr.Join(c.Param("id"), req.Nickname, req.Organization, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participant_id": pid})
}

func (s *Server) submit(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
		TaskID        int    `json:"task_id" binding:"required"`
		Language      string `json:"language" binding:"required"`
		Code          string `json:"code" binding:"required"`
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

	contestID := c.Param("id")
	if err := s.mgr.Admit(contestID, req.ParticipantID, req.TaskID, lang, req.Code, time.Now()); err != nil {
		s.fail(c, err)
		return
	}

	// The pending notification goes out before the job can be judged, so a
	// client always sees it ahead of the result.
	s.hub.SubmissionPending(contestID, req.ParticipantID, req.TaskID, s.disp.QueueSize()+1)
	depth := s.disp.Enqueue(dispatch.Job{
		ContestID:     contestID,
		ParticipantID: req.ParticipantID,
		TaskID:        req.TaskID,
		Language:      lang,
		Code:          req.Code,
	})
	c.JSON(http.StatusOK, gin.H{"status": "queued", "queue_size": depth})
}

func (s *Server) finishEarly(c *gin.Context) {
	var req struct {
		ParticipantID string `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	contestID := c.Param("id")
	if err := s.mgr.FinishEarly(contestID, req.ParticipantID); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.BroadcastBoard(contestID)
	c.JSON(http.StatusOK, gin.H{"status": "finished"})
}

func (s *Server) scoreboard(c *gin.Context) {
	view, err := s.mgr.Snapshot(c.Param("id"), time.Now(), false)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) history(c *gin.Context) {
	contestID := c.Param("id")
	pid := c.Query("participant_id")
	if _, err := s.mgr.Participant(contestID, pid); err != nil {
		s.fail(c, err)
		return
	}
	records, err := s.store.ParticipantHistory(contestID, pid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": records})
}

func (s *Server) websocket(c *gin.Context) {
	contestID := c.Param("id")
	if _, err := s.mgr.Contest(contestID); err != nil {
		s.fail(c, err)
		return
	}
	s.hub.HandleConnection(c.Writer, c.Request, contestID, c.Query("participant_id"))
}

func (s *Server) taskView(c *gin.Context) {
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
		"has_attachment": len(task.Attachment) > 0,
		"file_format":    task.FileFormat,
	})
}

func (s *Server) taskAttachment(c *gin.Context) {
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
	if len(task.Attachment) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	name := "attachment"
	if task.FileFormat != "" {
		name += "." + task.FileFormat
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/octet-stream", task.Attachment)
}
