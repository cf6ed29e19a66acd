package gamification

import (
	"testing"
	"time"

	"github.com/nursehub/backend/internal/models"
)

func TestLevelForPoints(t *testing.T) {
	tests := []struct {
		points int64
		want   int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
		{10000, 11},
		{-50, 1},
	}
	for _, tt := range tests {
		if got := LevelForPoints(tt.points); got != tt.want {
			t.Errorf("LevelForPoints(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestPointsToNextLevel(t *testing.T) {
	tests := []struct {
		points int64
		want   int64
	}{
		{0, 100},
		{99, 1},
		{100, 300},  // level 2, next boundary 400
		{950, 650},  // level 4, next boundary 1600
		{1600, 900}, // level 5, next boundary 2500
	}
	for _, tt := range tests {
		if got := PointsToNextLevel(tt.points); got != tt.want {
			t.Errorf("PointsToNextLevel(%d) = %d, want %d", tt.points, got, tt.want)
		}
	}
}

func TestApplyAmountCrossesLevelBoundary(t *testing.T) {
	now := time.Now()
	start := models.UserPointsTotal{UserID: 1, TotalPoints: 980, Level: 4, PointsToNextLevel: 620}

	got := applyAmount(start, 50, now)
	if got.TotalPoints != 1030 {
		t.Errorf("TotalPoints = %d, want 1030", got.TotalPoints)
	}
	if got.Level != 4 {
		t.Errorf("Level = %d, want 4", got.Level)
	}
	if got.PointsToNextLevel != 570 {
		t.Errorf("PointsToNextLevel = %d, want 570", got.PointsToNextLevel)
	}

	got = applyAmount(models.UserPointsTotal{UserID: 1, TotalPoints: 99}, 1, now)
	if got.Level != 2 {
		t.Errorf("Level after crossing 100 = %d, want 2", got.Level)
	}
}
