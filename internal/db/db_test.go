package db

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		want     string
	}{
		{"no password", "root", "", "root@tcp(127.0.0.1:3306)/atende?parseTime=true&charset=utf8mb4"},
		{"with password", "atende", "s3cret", "atende:s3cret@tcp(127.0.0.1:3306)/atende?parseTime=true&charset=utf8mb4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DSN(tt.user, tt.password, "127.0.0.1", 3306, "atende")
			if got != tt.want {
				t.Errorf("DSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAutoMigrate(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	for _, table := range []string{
		"operators", "customers", "consent_records",
		"conversations", "conversation_messages", "negotiations", "alerts",
	} {
		if !gdb.Migrator().HasTable(table) {
			t.Errorf("table %q not created", table)
		}
	}
}

func TestConnect_BadHost(t *testing.T) {
	_, err := Connect("root", "", "127.0.0.1", 1, "nope")
	if err == nil {
		t.Skip("unexpectedly connected; a local mysql is listening on port 1")
	}
	if !strings.Contains(err.Error(), "db: connect") {
		t.Errorf("error = %q, want db: connect prefix", err)
	}
}
