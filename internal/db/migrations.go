package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE TABLE IF NOT EXISTS detections (
		id               UUID PRIMARY KEY,
		detected_at      TIMESTAMPTZ NOT NULL,
		direction        TEXT NOT NULL,
		plate_number     TEXT,
		normalized_plate TEXT,
		plate_confidence DOUBLE PRECISION,
		plate_bbox       JSONB,
		plate_color      TEXT,
		plate_type       TEXT,
		plate_region     TEXT,
		vehicle_bbox     JSONB,
		vehicle_color    TEXT,
		vehicle_type     TEXT,
		vehicle_series   TEXT,
		image_path       TEXT NOT NULL,
		delivery_state   TEXT NOT NULL DEFAULT 'PENDING',
		failure_reason   TEXT,
		raw_payload      JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		sent_at          TIMESTAMPTZ
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_delivery_state ON detections(delivery_state);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_detected_at ON detections(detected_at);`,
	`CREATE INDEX IF NOT EXISTS idx_detections_normalized_plate ON detections(normalized_plate);`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		detection_id UUID REFERENCES detections(id),
		chat_id      BIGINT NOT NULL,
		delivered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (detection_id, chat_id)
	);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
