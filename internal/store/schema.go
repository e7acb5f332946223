package store

const schema = `
-- Consumed documents: metadata, extracted text and artifact locations.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filename TEXT NOT NULL,
    checksum TEXT UNIQUE NOT NULL,
    title TEXT,
    sender TEXT,
    recipients TEXT,
    created DATETIME,
    consumed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    archive_path TEXT DEFAULT '',
    thumbnail_path TEXT DEFAULT '',
    text TEXT,
    size INTEGER,
    rule_id INTEGER DEFAULT 0
);

-- Full-text search over title, sender and extracted text.
CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
    title,
    sender,
    text,
    content='documents',
    content_rowid='id'
);

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
    INSERT INTO documents_fts(rowid, title, sender, text)
    VALUES (new.id, new.title, new.sender, new.text);
END;

CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
    DELETE FROM documents_fts WHERE rowid = old.id;
END;

CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
    UPDATE documents_fts
    SET title = new.title,
        sender = new.sender,
        text = new.text
    WHERE rowid = new.id;
END;

-- Per-message conversion rules.
CREATE TABLE IF NOT EXISTS rules (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    layout TEXT NOT NULL,
    scope TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes for performance
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created DESC);
CREATE INDEX IF NOT EXISTS idx_documents_consumed_at ON documents(consumed_at DESC);
`
