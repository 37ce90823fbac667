package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/models/reports"
	"github.com/lumeodev/cra_backend/workflow"
)

func registerRoutes(api *gin.RouterGroup) {
	api.POST("/missions", createMissionHandler)
	api.GET("/missions", listMissionsHandler)
	api.GET("/missions/:id", getMissionHandler)
	api.PATCH("/missions/:id", updateMissionHandler)

	api.POST("/reports", createReportHandler)
	api.GET("/reports", listReportsHandler)
	api.GET("/reports/:id", getReportHandler)
	api.DELETE("/reports/:id", deleteReportHandler)
	api.POST("/reports/:id/submit", submitReportHandler)
	api.POST("/reports/:id/lock", lockReportHandler)
	api.GET("/reports/:id/entries", listEntriesHandler)
	api.GET("/reports/:id/missions", listReportMissionsHandler)
	api.DELETE("/reports/:id/missions/:missionId/link", removeMissionLinkHandler)
	api.GET("/reports/:id/export", exportReportHandler)

	api.POST("/entries", createEntryHandler)
	api.PATCH("/entries/:id", updateEntryHandler)
	api.DELETE("/entries/:id", deleteEntryHandler)
}

// respondError maps the domain error taxonomy to HTTP statuses:
// lifecycle/uniqueness conflicts -> 409, invalid transitions -> 422,
// not-found -> 404, ledger commit failure -> 500, everything else -> 400.
func respondError(c *gin.Context, err error) {
	var transitionErr *models.InvalidTransitionError
	var ledgerErr *models.LedgerCommitError

	switch {
	case errors.Is(err, models.ErrReportNotFound),
		errors.Is(err, models.ErrEntryNotFound),
		errors.Is(err, models.ErrMissionNotFound),
		errors.Is(err, models.ErrMissionLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrReportLocked),
		errors.Is(err, models.ErrReportSubmitted),
		errors.Is(err, models.ErrDuplicateEntry),
		errors.Is(err, models.ErrDuplicateReportPeriod):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &ledgerErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func idParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func createMissionHandler(c *gin.Context) {
	var input models.NewMission
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mission, err := models.CreateMission(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mission)
}

func listMissionsHandler(c *gin.Context) {
	missions, err := models.ListMissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, missions)
}

func getMissionHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	mission, err := models.GetMission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

func updateMissionHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var changes models.MissionChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mission, err := models.UpdateMission(c.Request.Context(), id, &changes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mission)
}

func createReportHandler(c *gin.Context) {
	var input models.NewReport
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := models.CreateReport(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func listReportsHandler(c *gin.Context) {
	var filter models.ReportFilter
	if s := c.Query("status"); s != "" {
		status, err := models.ParseReportStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Status = &status
	}
	if y := c.Query("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		filter.Year = &year
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, total, err := models.ListReports(c.Request.Context(), &filter, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": results, "total_count": total})
}

func getReportHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := models.GetReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func deleteReportHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := models.DeleteReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func submitReportHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := workflow.SubmitReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func lockReportHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := workflow.LockReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func listEntriesHandler(c *gin.Context) {
	reportId, ok := idParam(c, "id")
	if !ok {
		return
	}

	var filter models.EntryFilter
	if m := c.Query("mission_id"); m != "" {
		missionId, err := strconv.Atoi(m)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mission_id"})
			return
		}
		filter.MissionId = &missionId
	}
	if f := c.Query("from"); f != "" {
		from, err := time.Parse("2006-01-02", f)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		filter.FromDate = &from
	}
	if t := c.Query("to"); t != "" {
		to, err := time.Parse("2006-01-02", t)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		filter.ToDate = &to
	}

	sort := models.EntrySortDateAsc
	if c.Query("sort") == "date_desc" {
		sort = models.EntrySortDateDesc
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, total, err := models.PaginateEntries(c.Request.Context(), reportId, &filter, sort, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total_count": total})
}

func listReportMissionsHandler(c *gin.Context) {
	reportId, ok := idParam(c, "id")
	if !ok {
		return
	}
	links, err := models.ListReportMissionLinks(c.Request.Context(), reportId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func removeMissionLinkHandler(c *gin.Context) {
	reportId, ok := idParam(c, "id")
	if !ok {
		return
	}
	missionId, ok := idParam(c, "missionId")
	if !ok {
		return
	}
	if err := models.RemoveMissionLink(c.Request.Context(), reportId, missionId); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func exportReportHandler(c *gin.Context) {
	reportId, ok := idParam(c, "id")
	if !ok {
		return
	}
	data, err := reports.ExportReportXlsx(c.Request.Context(), reportId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=report.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func createEntryHandler(c *gin.Context) {
	var input models.NewEntry
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := models.CreateEntry(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func updateEntryHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var changes models.EntryChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := models.UpdateEntry(c.Request.Context(), id, &changes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func deleteEntryHandler(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := models.DeleteEntry(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
