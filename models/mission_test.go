package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lumeodev/cra_backend/models"
	"github.com/lumeodev/cra_backend/utils"
	"github.com/shopspring/decimal"
)

func TestGetMissionNotFound(t *testing.T) {
	ctx := setupTest(t)

	if _, err := models.GetMission(ctx, 99999); !errors.Is(err, models.ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound, got %v", err)
	}
}

func TestUpdateMission(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Backend Dev")

	title := "Platform Dev"
	rate := int64(60000)
	updated, err := models.UpdateMission(ctx, mission.ID, &models.MissionChanges{Title: &title, DailyRate: &rate})
	if err != nil {
		t.Fatalf("UpdateMission: %v", err)
	}
	if updated.Title != "Platform Dev" || updated.DailyRate != 60000 {
		t.Fatalf("mission = %q/%d, want Platform Dev/60000", updated.Title, updated.DailyRate)
	}

	reloaded, err := models.GetMission(ctx, mission.ID)
	if err != nil {
		t.Fatalf("GetMission: %v", err)
	}
	if reloaded.Title != "Platform Dev" {
		t.Fatalf("reloaded title = %q, want Platform Dev", reloaded.Title)
	}

	// no-op update leaves the row untouched
	if _, err := models.UpdateMission(ctx, mission.ID, &models.MissionChanges{}); err != nil {
		t.Fatalf("empty UpdateMission: %v", err)
	}

	if _, err := models.UpdateMission(ctx, 99999, &models.MissionChanges{Title: &title}); !errors.Is(err, models.ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound, got %v", err)
	}
}

func TestUpdateMissionRejectsInvalidInput(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Backend Dev")

	empty := ""
	if _, err := models.UpdateMission(ctx, mission.ID, &models.MissionChanges{Title: &empty}); err == nil {
		t.Fatal("expected error for empty title")
	}
	negative := int64(-1)
	if _, err := models.UpdateMission(ctx, mission.ID, &models.MissionChanges{DailyRate: &negative}); err == nil {
		t.Fatal("expected error for negative daily rate")
	}
}

func TestDeactivatedMissionBlocksNewEntries(t *testing.T) {
	ctx := setupTest(t)

	mission := createTestMission(t, ctx, "Old Gig")
	report := createTestReport(t, ctx, 3, 2026)
	entry := createTestEntry(t, ctx, report.ID, mission.ID, day(2026, time.March, 3), "1.0", 50000)

	if _, err := models.UpdateMission(ctx, mission.ID, &models.MissionChanges{IsActive: utils.NewFalse()}); err != nil {
		t.Fatalf("UpdateMission: %v", err)
	}

	_, err := models.CreateEntry(ctx, &models.NewEntry{
		ReportId:  report.ID,
		MissionId: mission.ID,
		EntryDate: day(2026, time.March, 4),
		Quantity:  decimal.RequireFromString("1"),
		UnitPrice: 50000,
	})
	if !errors.Is(err, models.ErrMissionNotFound) {
		t.Fatalf("expected ErrMissionNotFound, got %v", err)
	}

	// existing entries of the deactivated mission are still deletable
	if err := models.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
}
