package server

import (
	"errors"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	"github.com/gin-gonic/gin"
)

var errEmptyPatch = errors.New("no fields to update")

type teamRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func bindTeam(c *gin.Context) (*models.Team, error) {
	var req teamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	return &models.Team{Name: req.Name, Description: req.Description}, nil
}

type backlogItemRequest struct {
	TeamID      uint64 `json:"team_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
	Estimate    int    `json:"estimate" binding:"gte=0"`
}

func bindBacklogItem(c *gin.Context) (*models.BacklogItem, error) {
	var req backlogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	return &models.BacklogItem{
		TeamID:      req.TeamID,
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Estimate:    req.Estimate,
	}, nil
}

type sprintRequest struct {
	TeamID      uint64    `json:"team_id" binding:"required"`
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date" binding:"required"`
	EndDate     time.Time `json:"end_date" binding:"required"`
	Status      string    `json:"status"`
}

func bindSprint(c *gin.Context) (*models.Sprint, error) {
	var req sprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	return &models.Sprint{
		TeamID:      req.TeamID,
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate.UTC(),
		EndDate:     req.EndDate.UTC(),
		Status:      req.Status,
	}, nil
}

type taskRequest struct {
	SprintID    uint64 `json:"sprint_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Estimate    int    `json:"estimate" binding:"gte=0"`
	Status      string `json:"status"`
}

func bindTask(c *gin.Context) (*models.Task, error) {
	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	return &models.Task{
		SprintID:    req.SprintID,
		Title:       req.Title,
		Description: req.Description,
		Estimate:    req.Estimate,
		Status:      req.Status,
	}, nil
}

// Patches only carry the fields present in the body. Column names match the
// per kind update whitelist.

type teamPatchRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func teamPatch(c *gin.Context) (map[string]any, error) {
	var req teamPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	setIf(fields, "name", req.Name)
	setIf(fields, "description", req.Description)
	return nonEmpty(fields)
}

type backlogItemPatchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *int    `json:"priority"`
	Estimate    *int    `json:"estimate" binding:"omitempty,gte=0"`
}

func backlogItemPatch(c *gin.Context) (map[string]any, error) {
	var req backlogItemPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	setIf(fields, "title", req.Title)
	setIf(fields, "description", req.Description)
	setIf(fields, "priority", req.Priority)
	setIf(fields, "estimate", req.Estimate)
	return nonEmpty(fields)
}

type sprintPatchRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

func sprintPatch(c *gin.Context) (map[string]any, error) {
	var req sprintPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if req.StartDate != nil && req.EndDate != nil && req.EndDate.Before(*req.StartDate) {
		return nil, errors.New("end_date is before start_date")
	}
	fields := map[string]any{}
	setIf(fields, "name", req.Name)
	setIf(fields, "description", req.Description)
	if req.StartDate != nil {
		fields["start_date"] = req.StartDate.UTC()
	}
	if req.EndDate != nil {
		fields["end_date"] = req.EndDate.UTC()
	}
	return nonEmpty(fields)
}

type taskPatchRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Estimate    *int    `json:"estimate" binding:"omitempty,gte=0"`
}

func taskPatch(c *gin.Context) (map[string]any, error) {
	var req taskPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	setIf(fields, "title", req.Title)
	setIf(fields, "description", req.Description)
	setIf(fields, "estimate", req.Estimate)
	return nonEmpty(fields)
}

func setIf[T any](fields map[string]any, column string, v *T) {
	if v != nil {
		fields[column] = *v
	}
}

func nonEmpty(fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, errEmptyPatch
	}
	return fields, nil
}
