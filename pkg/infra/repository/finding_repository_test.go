package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/domain/finding"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	return gormDB, mock
}

func sampleFinding() *finding.Finding {
	return &finding.Finding{
		PluginID:   "sqli-detector",
		VulnType:   "sql_injection",
		Title:      "SQL error in response body",
		Evidence:   "ORA-01756: quoted string not properly terminated",
		Location:   "https://target.example.com/login",
		Severity:   types.SeverityHigh,
		Confidence: types.ConfidenceMedium,
		URL:        "https://target.example.com/login",
		Method:     "POST",
		Signature:  "3f5a9c0d7e21",
	}
}

func TestFindingRepository_SignatureExists(t *testing.T) {
	t.Run("existing signature", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "public"."findings" WHERE signature = $1`)).
			WithArgs("3f5a9c0d7e21").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		exists, err := repo.SignatureExists(context.Background(), "3f5a9c0d7e21")
		require.NoError(t, err)
		assert.True(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown signature", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "public"."findings" WHERE signature = $1`)).
			WithArgs("deadbeef").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		exists, err := repo.SignatureExists(context.Background(), "deadbeef")
		require.NoError(t, err)
		assert.False(t, exists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "public"."findings"`)).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.SignatureExists(context.Background(), "3f5a9c0d7e21")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to check finding signature")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindingRepository_Insert(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."findings"`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		entity := sampleFinding()
		err := repo.Insert(context.Background(), entity)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, entity.ID)
		assert.Equal(t, 1, entity.HitCount)
		assert.False(t, entity.FirstSeenAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to duplicate signature", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."findings"`)).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_findings_signature"})
		mock.ExpectRollback()

		err := repo.Insert(context.Background(), sampleFinding())
		assert.ErrorIs(t, err, domain.ErrDuplicateSignature)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("translated duplicate key maps to duplicate signature", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."findings"`)).
			WillReturnError(gorm.ErrDuplicatedKey)
		mock.ExpectRollback()

		err := repo.Insert(context.Background(), sampleFinding())
		assert.ErrorIs(t, err, domain.ErrDuplicateSignature)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other database error is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "public"."findings"`)).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := repo.Insert(context.Background(), sampleFinding())
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrDuplicateSignature)
		assert.Contains(t, err.Error(), "failed to insert finding")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid finding never reaches the database", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectRollback()

		entity := sampleFinding()
		entity.Signature = ""
		err := repo.Insert(context.Background(), entity)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "signature is required")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestFindingRepository_IncrementHitCount(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."findings" SET`)).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "3f5a9c0d7e21").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.IncrementHitCount(context.Background(), "3f5a9c0d7e21")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown signature", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."findings" SET`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.IncrementHitCount(context.Background(), "deadbeef")
		assert.True(t, domain.IsNotFoundError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewFindingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."findings" SET`)).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := repo.IncrementHitCount(context.Background(), "3f5a9c0d7e21")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to increment hit count")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
