package migrations

import (
	"github.com/sentinelsec/sentinel-core/pkg/infra/database"
	"gorm.io/gorm"
)

// Initial SQL schema for the scan pipeline.
// Tables: plugin_registry, findings, traffic_records
func init() {
	database.RegisterMigration(database.Migration{
		ID:   "20250801_initial_schema",
		Name: "Create core tables: plugin_registry, findings, traffic_records",

		Up: func(db *gorm.DB) error {
			// 1. Ensure pgcrypto extension for gen_random_uuid()
			if err := db.Exec(`
				CREATE EXTENSION IF NOT EXISTS pgcrypto;
			`).Error; err != nil {
				return err
			}

			// 2. Create plugin_registry table
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS public.plugin_registry (
					id               TEXT PRIMARY KEY,
					name             TEXT NOT NULL,
					version          TEXT,
					author           TEXT,
					main_category    TEXT,
					category         TEXT,
					description      TEXT,
					default_severity TEXT NOT NULL DEFAULT 'medium',
					tags             JSONB,
					code             TEXT NOT NULL,
					enabled          BOOLEAN NOT NULL DEFAULT TRUE,
					created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_plugin_registry_main_category
					ON public.plugin_registry (main_category);
			`).Error; err != nil {
				return err
			}

			// 3. Create findings table; the unique signature index backs
			// cross-restart deduplication
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS public.findings (
					id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					plugin_id        TEXT NOT NULL,
					vuln_type        TEXT NOT NULL,
					title            TEXT NOT NULL,
					description      TEXT,
					evidence         TEXT,
					location         TEXT,
					severity         TEXT NOT NULL DEFAULT 'medium',
					confidence       TEXT NOT NULL DEFAULT 'medium',
					cwe              TEXT,
					owasp            TEXT,
					remediation      TEXT,
					url              TEXT,
					method           TEXT,
					response_status  INTEGER,
					request_headers  TEXT,
					request_body     TEXT,
					response_headers TEXT,
					response_body    TEXT,
					signature        TEXT NOT NULL,
					hit_count        INTEGER NOT NULL DEFAULT 1,
					first_seen_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					last_seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_findings_signature
					ON public.findings (signature);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_findings_plugin_id
					ON public.findings (plugin_id);
			`).Error; err != nil {
				return err
			}

			// 4. Create traffic_records table
			if err := db.Exec(`
				CREATE TABLE IF NOT EXISTS public.traffic_records (
					id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					url                     TEXT NOT NULL,
					host                    TEXT NOT NULL DEFAULT 'unknown',
					protocol                TEXT NOT NULL DEFAULT 'http',
					path                    TEXT NOT NULL DEFAULT '/',
					method                  TEXT NOT NULL,
					status_code             INTEGER,
					request_headers         TEXT,
					request_body            TEXT,
					response_headers        TEXT,
					response_body           TEXT,
					response_size           BIGINT NOT NULL DEFAULT 0,
					response_time_ms        BIGINT NOT NULL DEFAULT 0,
					timestamp               TIMESTAMPTZ NOT NULL,
					was_edited              BOOLEAN NOT NULL DEFAULT FALSE,
					edited_method           TEXT,
					edited_url              TEXT,
					edited_request_headers  TEXT,
					edited_request_body     TEXT,
					edited_response_headers TEXT,
					edited_response_body    TEXT,
					edited_status_code      INTEGER,
					created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`).Error; err != nil {
				return err
			}

			if err := db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_traffic_records_host
					ON public.traffic_records (host);
			`).Error; err != nil {
				return err
			}

			return db.Exec(`
				CREATE INDEX IF NOT EXISTS idx_traffic_records_timestamp
					ON public.traffic_records (timestamp);
			`).Error
		},

		Down: func(db *gorm.DB) error {
			for _, stmt := range []string{
				`DROP TABLE IF EXISTS public.traffic_records;`,
				`DROP TABLE IF EXISTS public.findings;`,
				`DROP TABLE IF EXISTS public.plugin_registry;`,
			} {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
	})
}
