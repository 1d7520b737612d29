package sqlite

import (
	"fmt"

	"gorm.io/gorm"
)

// initializeSchema creates the tables in the shape the Postgres migrations
// leave them in.
func initializeSchema(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS certificate_authorities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL DEFAULT 0,
			uuid TEXT NOT NULL,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL,
			type TEXT NOT NULL,
			parent_id INTEGER NULL REFERENCES certificate_authorities (id),
			created_at DATETIME NULL,
			updated_at DATETIME NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_certificate_authorities_uuid ON certificate_authorities (uuid)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_certificate_authorities_normalized_name ON certificate_authorities (normalized_name)`,
		`CREATE INDEX IF NOT EXISTS idx_certificate_authorities_parent_id ON certificate_authorities (parent_id)`,

		`CREATE TABLE IF NOT EXISTS key_pairs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ca_id INTEGER NOT NULL REFERENCES certificate_authorities (id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			algorithm TEXT NULL,
			size INTEGER NULL,
			engine_id TEXT NULL,
			key_id TEXT NULL,
			public_key BLOB NULL,
			subject_key_id TEXT NULL,
			status TEXT NOT NULL,
			status_history TEXT NULL,
			crl_filename TEXT NULL,
			manifest_filename TEXT NULL,
			crl_number INTEGER NOT NULL DEFAULT 0,
			manifest_number INTEGER NOT NULL DEFAULT 0,
			published_state TEXT NULL,
			published_until DATETIME NULL,
			created_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_key_pairs_ca_id ON key_pairs (ca_id)`,
		`CREATE INDEX IF NOT EXISTS idx_key_pairs_subject_key_id ON key_pairs (subject_key_id)`,

		`CREATE TABLE IF NOT EXISTS incoming_resource_certificates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key_pair_id INTEGER NOT NULL REFERENCES key_pairs (id) ON DELETE CASCADE,
			ca_id INTEGER NOT NULL,
			serial_number TEXT NULL,
			subject TEXT NULL,
			issuer TEXT NULL,
			resources TEXT NULL,
			not_before DATETIME NULL,
			not_after DATETIME NULL,
			publication_uri TEXT NULL,
			encoded BLOB NULL,
			updated_at DATETIME NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_incoming_resource_certificates_key_pair_id ON incoming_resource_certificates (key_pair_id)`,
		`CREATE INDEX IF NOT EXISTS idx_incoming_resource_certificates_ca_id ON incoming_resource_certificates (ca_id)`,

		`CREATE TABLE IF NOT EXISTS outgoing_resource_certificates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			signing_key_pair_id INTEGER NOT NULL,
			subject_key_id TEXT NOT NULL,
			subject_public_key BLOB NULL,
			serial_number TEXT NULL,
			subject TEXT NULL,
			issuer TEXT NULL,
			resources TEXT NULL,
			not_before DATETIME NULL,
			not_after DATETIME NULL,
			sia TEXT NULL,
			publication_uri TEXT NULL,
			signing_certificate_uri TEXT NULL,
			encoded BLOB NULL,
			status TEXT NOT NULL,
			revocation_time DATETIME NULL,
			requesting_ca_id INTEGER NULL,
			embedded BOOLEAN NOT NULL DEFAULT 0,
			published_object_id INTEGER NULL,
			created_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_resource_certificates_signing_key_pair_id ON outgoing_resource_certificates (signing_key_pair_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_resource_certificates_subject_key_id ON outgoing_resource_certificates (subject_key_id)`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_resource_certificates_status ON outgoing_resource_certificates (status)`,
		`CREATE INDEX IF NOT EXISTS idx_outgoing_resource_certificates_requesting_ca_id ON outgoing_resource_certificates (requesting_ca_id)`,

		`CREATE TABLE IF NOT EXISTS published_objects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			issuing_key_pair_id INTEGER NULL,
			uri TEXT NOT NULL,
			content BLOB NULL,
			content_hash TEXT NULL,
			status TEXT NOT NULL,
			validity_end DATETIME NULL,
			trust_anchor BOOLEAN NOT NULL DEFAULT 0,
			status_changed_at DATETIME NULL,
			created_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_published_objects_issuing_key_pair_id ON published_objects (issuing_key_pair_id)`,
		`CREATE INDEX IF NOT EXISTS idx_published_objects_uri ON published_objects (uri)`,
		`CREATE INDEX IF NOT EXISTS idx_published_objects_status ON published_objects (status)`,

		`CREATE TABLE IF NOT EXISTS non_hosted_public_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ca_id INTEGER NOT NULL REFERENCES certificate_authorities (id) ON DELETE CASCADE,
			subject_key_id TEXT NOT NULL,
			public_key BLOB NULL,
			latest_request_type TEXT NULL,
			requested_resource_sets TEXT NULL,
			requested_sia TEXT NULL,
			created_at DATETIME NULL,
			updated_at DATETIME NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_nonhosted_ca_ski ON non_hosted_public_keys (ca_id, subject_key_id)`,

		`CREATE TABLE IF NOT EXISTS command_audits (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ca_id INTEGER NOT NULL,
			ca_version INTEGER NOT NULL,
			command_type TEXT NOT NULL,
			command_group TEXT NOT NULL,
			summary TEXT NULL,
			executed_at DATETIME NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_command_audits_ca_id ON command_audits (ca_id)`,
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("could not initialize sqlite schema: %w", err)
		}
	}

	return nil
}
