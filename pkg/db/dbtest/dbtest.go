// Package dbtest opens isolated in-memory sqlite databases carrying the
// application schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var seq atomic.Int64

// Open returns a fresh sqlite database without the application schema.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// OpenWithSchema returns a fresh sqlite database with every application table created.
func OpenWithSchema(t testing.TB) *gorm.DB {
	t.Helper()
	conn := Open(t)
	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Schema mirrors the goose migrations using sqlite-compatible column types.
var Schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		roles TEXT NOT NULL DEFAULT '{customer}',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		chef_id TEXT NOT NULL,
		chat_id TEXT,
		order_items TEXT NOT NULL,
		total_amount NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT 'GBP',
		order_status TEXT NOT NULL DEFAULT 'pending',
		payment_status TEXT NOT NULL DEFAULT 'pending',
		delivery_address TEXT,
		special_instructions TEXT,
		delivery_time DATETIME,
		estimated_prep_time_minutes INTEGER,
		chef_notes TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		confirmed_at DATETIME,
		preparing_at DATETIME,
		ready_at DATETIME,
		delivered_at DATETIME,
		completed_at DATETIME,
		reviewed_at DATETIME,
		review_rating INTEGER,
		review_notes TEXT,
		cancelled_at DATETIME,
		cancelled_by TEXT,
		cancellation_reason TEXT,
		cancellation_description TEXT,
		refund_eligible_until DATETIME,
		is_refundable BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		action TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT,
		reason TEXT,
		performed_by TEXT NOT NULL,
		performed_by_role TEXT NOT NULL,
		description TEXT NOT NULL,
		metadata TEXT,
		performed_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_notes (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		note_type TEXT NOT NULL,
		note TEXT NOT NULL,
		added_by TEXT NOT NULL,
		metadata TEXT,
		added_at DATETIME NOT NULL
	)`,
	`CREATE TABLE order_notifications (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		message TEXT NOT NULL,
		priority TEXT NOT NULL,
		channels TEXT NOT NULL,
		sent_by TEXT NOT NULL,
		metadata TEXT,
		status TEXT NOT NULL DEFAULT 'sent',
		sent_at DATETIME NOT NULL
	)`,
	`CREATE TABLE chats (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT 'direct',
		order_id TEXT,
		support_case_id TEXT,
		metadata TEXT,
		last_message_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE chat_participants (
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		joined_at DATETIME NOT NULL,
		PRIMARY KEY (chat_id, user_id)
	)`,
	`CREATE TABLE messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		message_type TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL,
		file_url TEXT,
		file_type TEXT,
		file_name TEXT,
		file_size INTEGER,
		metadata TEXT,
		edited_at DATETIME,
		deleted_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE message_reactions (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (message_id, user_id, emoji)
	)`,
	`CREATE TABLE message_reads (
		message_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		read_at DATETIME NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
	`CREATE TABLE support_cases (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		message TEXT NOT NULL,
		category TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'open',
		order_id TEXT,
		attachments TEXT NOT NULL DEFAULT '[]',
		support_reference TEXT NOT NULL UNIQUE,
		last_message TEXT,
		chat_id TEXT,
		assigned_agent_id TEXT,
		resolved_at DATETIME,
		closed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE admin_logs (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		details TEXT,
		user_id TEXT NOT NULL,
		admin_id TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE changes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		change_type TEXT NOT NULL,
		data TEXT NOT NULL,
		audience TEXT NOT NULL DEFAULT '{}',
		synced BOOLEAN NOT NULL DEFAULT 0,
		source_event_id TEXT UNIQUE,
		occurred_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'medium',
		action_url TEXT,
		metadata TEXT,
		read_at DATETIME,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}
