package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.SystemLog{}))
	return db
}

func TestPGHandlerPersistsErrors(t *testing.T) {
	db := newTestDB(t)
	h := NewPGHandler(db)
	log := slog.New(h).With("request_id", "req-1")

	log.Info("ignored")
	log.Error("ledger write lost", "credit_id", int64(7), "tx_hash", "0xabc", "action", "transfer", "attempt", 2)
	h.Stop()

	var rows []models.SystemLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "ERROR", rows[0].Level)
	assert.Equal(t, "req-1", rows[0].RequestID)
	require.NotNil(t, rows[0].CreditID)
	assert.Equal(t, int64(7), *rows[0].CreditID)
	assert.Equal(t, "0xabc", rows[0].TxHash)
	assert.Equal(t, "transfer", rows[0].Action)
	assert.JSONEq(t, `{"attempt":2}`, string(rows[0].Extra))
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	log := slog.New(h)

	log.Info("hello")
	log.Error("boom")
	assert.Contains(t, a.String(), "hello")
	assert.Contains(t, a.String(), "boom")
	assert.NotContains(t, b.String(), "hello")
	assert.Contains(t, b.String(), "boom")
}

type brokenSink struct{ slog.Handler }

func (brokenSink) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandlerKeepsWritingPastFailedSink(t *testing.T) {
	var out bytes.Buffer
	text := slog.NewTextHandler(&out, nil)
	h := NewMultiHandler(brokenSink{text}, text)

	rec := slog.NewRecord(time.Now(), slog.LevelError, "ledger unavailable", 0)
	err := h.Handle(context.Background(), rec)
	assert.EqualError(t, err, "sink down")
	assert.Contains(t, out.String(), "ledger unavailable")

	grouped := h.WithGroup("")
	assert.Same(t, h, grouped)
}

func TestPurgeSystemLogs(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]models.SystemLog{
		{Timestamp: time.Now().Add(-40 * 24 * time.Hour), Level: "ERROR", Message: "old"},
		{Timestamp: time.Now(), Level: "ERROR", Message: "new"},
	}).Error)

	deleted, err := PurgeSystemLogs(context.Background(), db, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&models.SystemLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
