package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Joseda-hg/taskflow/internal/model"
)

func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.store.GetProfile(c.Request.Context(), s.owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var patch model.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		s.fail(c, badRequest(err.Error()))
		return
	}
	if patch.MaxDailyHours != nil && (*patch.MaxDailyHours <= 0 || *patch.MaxDailyHours > 24) {
		s.fail(c, badRequest("max_daily_hours must be within (0, 24]"))
		return
	}
	if patch.Timezone != nil && strings.TrimSpace(*patch.Timezone) != "" {
		if _, err := time.LoadLocation(*patch.Timezone); err != nil {
			s.fail(c, badRequest("unknown timezone "+strconv.Quote(*patch.Timezone)))
			return
		}
	}

	profile, err := s.store.UpdateProfile(c.Request.Context(), s.owner, patch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleMemories(c *gin.Context) {
	facts, err := s.store.ListMemories(c.Request.Context(), s.owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, facts)
}

func (s *Server) handleDeleteMemory(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.store.DeleteMemory(c.Request.Context(), s.owner, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) handleOverview(c *gin.Context) {
	overview, err := s.analyzer.Overview(c.Request.Context(), s.owner)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (s *Server) handleDaily(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 || days > 366 {
		s.fail(c, badRequest("days must be between 1 and 366"))
		return
	}
	points, err := s.analyzer.Daily(c.Request.Context(), s.owner, days)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) handleHeatmap(c *gin.Context) {
	year := 0
	if value := c.Query("year"); value != "" {
		var err error
		if year, err = strconv.Atoi(value); err != nil || year <= 0 {
			s.fail(c, badRequest("invalid year"))
			return
		}
	}
	cells, err := s.analyzer.Heatmap(c.Request.Context(), s.owner, year)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cells)
}
