package sqlite

// schema is applied on every open. All DDL is idempotent so existing
// databases are left untouched. Timestamps are UTC RFC3339 strings; email
// and category names carry a case-folded shadow column for uniqueness.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	email_folded TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'client',
	password_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_folded ON users(email_folded);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);

CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	name_folded TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	sla_minutes INTEGER,
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_name_folded ON categories(name_folded);

CREATE TABLE IF NOT EXISTS departments (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_departments_name ON departments(name);

CREATE TABLE IF NOT EXISTS operators (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id),
	department_id TEXT REFERENCES departments(id) ON DELETE RESTRICT,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operators_department ON operators(department_id);

CREATE TABLE IF NOT EXISTS ml_models (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_ml_models_name_version ON ml_models(name, version);

CREATE TABLE IF NOT EXISTS tickets (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	author_id TEXT NOT NULL REFERENCES users(id),
	subject TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	category_id TEXT REFERENCES categories(id),
	priority TEXT NOT NULL DEFAULT '',
	issue_type TEXT NOT NULL DEFAULT '',
	ai_confidence REAL NOT NULL DEFAULT 0 CHECK(ai_confidence >= 0 AND ai_confidence <= 1),
	assigned_department_id TEXT REFERENCES departments(id) ON DELETE RESTRICT,
	assigned_operator_id TEXT REFERENCES operators(id),
	status TEXT NOT NULL DEFAULT 'new',
	auto_resolved INTEGER NOT NULL DEFAULT 0,
	needs_clarification INTEGER NOT NULL DEFAULT 0,
	confidence_warning TEXT NOT NULL DEFAULT '',
	sla_deadline TIMESTAMP,
	is_escalated INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP,
	CHECK (
		(status IN ('closed', 'auto_resolved') AND closed_at IS NOT NULL) OR
		(status NOT IN ('closed', 'auto_resolved') AND closed_at IS NULL)
	)
);

CREATE INDEX IF NOT EXISTS idx_tickets_author ON tickets(author_id);
CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category_id);
CREATE INDEX IF NOT EXISTS idx_tickets_department ON tickets(assigned_department_id);
CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
CREATE INDEX IF NOT EXISTS idx_tickets_sla ON tickets(status, sla_deadline);

CREATE TABLE IF NOT EXISTS ticket_messages (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id),
	sender_id TEXT NOT NULL REFERENCES users(id),
	text TEXT NOT NULL,
	attachments TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_ticket ON ticket_messages(ticket_id, created_at);

CREATE TABLE IF NOT EXISTS ticket_history (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id),
	actor_id TEXT REFERENCES users(id),
	action TEXT NOT NULL,
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	seq INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_ticket ON ticket_history(ticket_id, created_at, seq);

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	recipient_id TEXT NOT NULL REFERENCES users(id),
	ticket_id TEXT REFERENCES tickets(id),
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	is_read INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, is_read, created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL UNIQUE REFERENCES tickets(id),
	user_id TEXT REFERENCES users(id),
	rating INTEGER NOT NULL CHECK(rating >= 1 AND rating <= 5),
	comment TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS ai_predictions (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id),
	model_id TEXT NOT NULL REFERENCES ml_models(id),
	predicted_category_id TEXT REFERENCES categories(id),
	predicted_priority TEXT NOT NULL DEFAULT '',
	predicted_issue_type TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_ticket ON ai_predictions(ticket_id);

CREATE TABLE IF NOT EXISTS auto_responses (
	id TEXT PRIMARY KEY,
	ticket_id TEXT NOT NULL REFERENCES tickets(id),
	response_text TEXT NOT NULL,
	is_successful INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_auto_responses_ticket ON auto_responses(ticket_id);
`
