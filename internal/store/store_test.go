package store

import (
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/lastwish-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dryRun renders SQL without a server.
func dryRun(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=lastwish dbname=lastwish sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func TestSaveSettings_UpsertKeepsStoredCheckIn(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &models.CheckInSettings{
		UserID:           uuid.New(),
		IsEnabled:        true,
		CheckInFrequency: 7,
		LastCheckIn:      &now,
		Recipients:       datatypes.JSONSlice[models.Recipient]{{ID: "r1", Email: "heir@example.com"}},
		IncludeData:      datatypes.NewJSONType(models.DefaultIncludeData()),
	}

	sql := dryRun(t).ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Omit(clause.Associations).Clauses(settingsUpsert()).Create(s)
	})

	i := strings.Index(sql, "ON CONFLICT")
	if i < 0 {
		t.Fatalf("no upsert clause in %s", sql)
	}
	conflict := sql[i:]
	if !strings.Contains(conflict, "COALESCE(last_wish_settings.last_check_in, EXCLUDED.last_check_in)") {
		t.Errorf("upsert does not preserve last_check_in: %s", conflict)
	}
	if strings.Contains(conflict, `"last_check_in"="excluded"."last_check_in"`) {
		t.Errorf("upsert overwrites last_check_in: %s", conflict)
	}
	for _, col := range []string{"delivery_triggered", "triggered_at", "episode_id"} {
		if strings.Contains(conflict, `"`+col+`"=`) {
			t.Errorf("upsert writes trigger column %s: %s", col, conflict)
		}
	}
	if !strings.Contains(conflict, `"message"="excluded"."message"`) {
		t.Errorf("upsert does not update owner columns: %s", conflict)
	}
}
