package sqlite

// schema is applied in order by Migrate. Dates are ISO YYYY-MM-DD text,
// timestamps fixed-width RFC3339 text in UTC, money INTEGER minor units.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number_masked TEXT,
		ifsc TEXT,
		branch TEXT,
		currency TEXT NOT NULL DEFAULT 'INR',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id)`,

	`CREATE TABLE IF NOT EXISTS statements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT REFERENCES accounts(id) ON DELETE SET NULL,
		filename TEXT NOT NULL,
		storage_ref TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL DEFAULT 0,
		content_sha256 TEXT NOT NULL,
		parse_status TEXT NOT NULL,
		parsed_at TEXT,
		tx_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, content_sha256)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_statements_user_created ON statements(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS counterparties (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		canonical_name TEXT NOT NULL COLLATE NOCASE,
		tx_count INTEGER NOT NULL DEFAULT 0,
		total_debit_minor INTEGER NOT NULL DEFAULT 0,
		total_credit_minor INTEGER NOT NULL DEFAULT 0,
		first_seen TEXT,
		last_seen TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, canonical_name)
	)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		statement_id TEXT NOT NULL REFERENCES statements(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		account_id TEXT,
		txn_date TEXT NOT NULL,
		value_date TEXT,
		narration TEXT NOT NULL,
		raw_line TEXT NOT NULL,
		reference TEXT,
		txn_type TEXT NOT NULL,
		amount_minor INTEGER NOT NULL DEFAULT 0,
		debit_minor INTEGER,
		credit_minor INTEGER,
		balance_minor INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL,
		counterparty_id TEXT REFERENCES counterparties(id) ON DELETE SET NULL,
		manual_flag INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (user_id, checksum)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_statement ON transactions(statement_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_cp ON transactions(user_id, counterparty_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_cp ON transactions(counterparty_id)`,

	`CREATE TABLE IF NOT EXISTS counterparty_aliases (
		counterparty_id TEXT NOT NULL REFERENCES counterparties(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		alias_type TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (counterparty_id, alias)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_aliases_alias ON counterparty_aliases(alias)`,

	`CREATE TABLE IF NOT EXISTS counterparty_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		old_counterparty_id TEXT,
		new_counterparty_id TEXT NOT NULL,
		changed_by TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS parse_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		statement_id TEXT REFERENCES statements(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		meta TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parse_logs_statement ON parse_logs(statement_id, id)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		meta TEXT,
		created_at TEXT NOT NULL
	)`,
}
