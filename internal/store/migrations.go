package store

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'USER',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL CHECK (price_cents > 0),
	duration TEXT NOT NULL DEFAULT '',
	images TEXT NOT NULL DEFAULT '[]',
	included TEXT NOT NULL DEFAULT '[]',
	excluded TEXT NOT NULL DEFAULT '[]',
	itinerary TEXT NOT NULL DEFAULT '[]',
	destination_id TEXT NOT NULL DEFAULT '',
	category_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS availability_slots (
	id TEXT PRIMARY KEY,
	activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	capacity INTEGER NOT NULL CHECK (capacity > 0),
	booked INTEGER NOT NULL DEFAULT 0,
	CONSTRAINT availability_slots_booked_range CHECK (booked >= 0 AND booked <= capacity)
);

CREATE TABLE IF NOT EXISTS bookings (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	activity_id TEXT NOT NULL REFERENCES activities(id),
	slot_id TEXT NOT NULL REFERENCES availability_slots(id),
	participants INTEGER NOT NULL CHECK (participants >= 1),
	total_price_cents BIGINT NOT NULL,
	booking_reference TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	idempotency_key TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT bookings_reference_unique UNIQUE (booking_reference),
	CONSTRAINT bookings_idempotency_unique UNIQUE (user_id, idempotency_key)
);

CREATE INDEX IF NOT EXISTS idx_bookings_user_created ON bookings(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bookings_pending_created ON bookings(created_at) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS payments (
	booking_id TEXT PRIMARY KEY REFERENCES bookings(id) ON DELETE CASCADE,
	provider TEXT NOT NULL,
	external_id TEXT NOT NULL,
	amount_cents BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_payments_external ON payments(provider, external_id);

CREATE TABLE IF NOT EXISTS reviews (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	activity_id TEXT NOT NULL REFERENCES activities(id) ON DELETE CASCADE,
	rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
	comment TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT reviews_user_activity_unique UNIQUE (user_id, activity_id)
);

CREATE TABLE IF NOT EXISTS processed_events (
	event_id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema and provisions the guest user that
// unauthenticated checkouts are attributed to.
func (s *Store) Migrate(ctx context.Context, guestUserID string) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, role) VALUES ($1, 'Guest User', '', 'USER')
		ON CONFLICT (id) DO NOTHING`, guestUserID)
	if err != nil {
		return fmt.Errorf("failed to provision guest user: %w", err)
	}
	return nil
}
