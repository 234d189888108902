package db

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from the configured connection parts.
func DSN(user, password, host string, port int, database string) string {
	cred := user
	if password != "" {
		cred = user + ":" + password
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4", cred, host, port, database)
}

// Connect opens a GORM connection to the record store.
func Connect(user, password, host string, port int, database string) (*gorm.DB, error) {
	dsn := DSN(user, password, host, port, database)
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return gdb, nil
}
