package alert

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imobia/atende/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Alert{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestRaise(t *testing.T) {
	db := newTestDB(t)

	a, err := Raise(db, "consent", "consent write failed after retries", RaiseOpts{
		Phone:    "5511999990000",
		Detail:   "database is locked",
		Priority: "urgent",
	})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if a.ID == 0 {
		t.Error("alert not persisted")
	}
	if a.Priority != "urgent" || a.Resolved {
		t.Errorf("alert = %+v", a)
	}
}

func TestRaise_Defaults(t *testing.T) {
	db := newTestDB(t)
	a, err := Raise(db, "bot", "negotiation write failed", RaiseOpts{})
	if err != nil {
		t.Fatalf("Raise: %v", err)
	}
	if a.Priority != "normal" {
		t.Errorf("priority = %q", a.Priority)
	}
}

func TestRaise_Validation(t *testing.T) {
	db := newTestDB(t)
	if _, err := Raise(db, "", "subject", RaiseOpts{}); err == nil {
		t.Error("empty source accepted")
	}
	if _, err := Raise(db, "consent", "", RaiseOpts{}); err == nil {
		t.Error("empty subject accepted")
	}
}

func TestUnresolvedAndResolve(t *testing.T) {
	db := newTestDB(t)

	first, _ := Raise(db, "consent", "first", RaiseOpts{})
	Raise(db, "bot", "second", RaiseOpts{})

	open, err := Unresolved(db)
	if err != nil {
		t.Fatalf("Unresolved: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("len = %d", len(open))
	}
	if open[0].Subject != "first" {
		t.Errorf("order wrong: %q first", open[0].Subject)
	}

	if err := Resolve(db, first.ID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	open, _ = Unresolved(db)
	if len(open) != 1 || open[0].Subject != "second" {
		t.Errorf("open = %+v", open)
	}

	if err := Resolve(db, 9999); err == nil {
		t.Error("resolving missing alert did not error")
	}
}
