package repo

import (
	"errors"
	"strings"

	"FromChat/internal/model"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Models: все модели, которые мигрирует сервер.
var Models = []any{
	&model.User{},
	&model.CryptoPublicKey{},
	&model.CryptoBackup{},
	&model.DMEnvelope{},
	&model.DMFile{},
	&model.DMReaction{},
}

// InitDB открывает БД и выполняет миграции.
// DSN вида "sqlite:<путь>" открывает SQLite (modernc), иначе: PostgreSQL.
func InitDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}
	var dial gorm.Dialector
	path, isSQLite := strings.CutPrefix(dsn, "sqlite:")
	if isSQLite {
		dial = gormsqlite.Dialector{DriverName: "sqlite", DSN: path}
	} else {
		dial = postgres.Open(dsn)
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if isSQLite {
		// SQLite не любит параллельных писателей
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(Models...); err != nil {
		return nil, err
	}
	return db, nil
}
