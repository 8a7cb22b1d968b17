package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelsec/sentinel-core/pkg/domain"
	"github.com/sentinelsec/sentinel-core/pkg/types"
)

var pluginColumns = []string{
	"id", "name", "version", "author", "main_category", "category",
	"description", "default_severity", "tags", "code", "enabled",
	"created_at", "updated_at",
}

func pluginRow(id, name, category string) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, name, "1.2.0", "sentinel", "passive", category,
		"Flags SQL error strings in responses", "high",
		[]byte(`["sqli","passive"]`), "export function scan_response() {}", true,
		now, now,
	}
}

func TestPluginRepository_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		rows := sqlmock.NewRows(pluginColumns).
			AddRow(pluginRow("sqli-detector", "SQL Injection Detector", "injection")...)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry" WHERE id = $1`)).
			WillReturnRows(rows)

		entity, err := repo.GetByID(context.Background(), "sqli-detector")
		require.NoError(t, err)
		assert.Equal(t, "sqli-detector", entity.ID)
		assert.Equal(t, "SQL Injection Detector", entity.Name)
		assert.Equal(t, "passive", entity.MainCategory)
		assert.Equal(t, types.SeverityHigh, entity.DefaultSeverity)
		assert.Equal(t, domain.TagsJSON{"sqli", "passive"}, entity.Tags)
		assert.True(t, entity.Enabled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry" WHERE id = $1`)).
			WillReturnRows(sqlmock.NewRows(pluginColumns))

		entity, err := repo.GetByID(context.Background(), "ghost")
		assert.Nil(t, entity)
		assert.True(t, domain.IsNotFoundError(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry"`)).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.GetByID(context.Background(), "sqli-detector")
		require.Error(t, err)
		assert.False(t, domain.IsNotFoundError(err))
		assert.Contains(t, err.Error(), "failed to fetch plugin")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPluginRepository_ListEnabled(t *testing.T) {
	t.Run("filters by main category", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		rows := sqlmock.NewRows(pluginColumns).
			AddRow(pluginRow("sqli-detector", "SQL Injection Detector", "injection")...).
			AddRow(pluginRow("xss-detector", "XSS Detector", "xss")...)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry" WHERE enabled = $1 AND main_category = $2 ORDER BY id`)).
			WithArgs(true, "passive").
			WillReturnRows(rows)

		entities, err := repo.ListEnabled(context.Background(), "passive")
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, "sqli-detector", entities[0].ID)
		assert.Equal(t, "xss-detector", entities[1].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty category lists every enabled plugin", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry" WHERE enabled = $1 ORDER BY id`)).
			WithArgs(true).
			WillReturnRows(sqlmock.NewRows(pluginColumns))

		entities, err := repo.ListEnabled(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, entities)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPluginRepository(db)

		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "public"."plugin_registry"`)).
			WillReturnError(errors.New("connection reset"))

		_, err := repo.ListEnabled(context.Background(), "passive")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to list enabled plugins")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
