package store

// Items follow a single-table layout: the partition key is PROJECT#<id> and
// the sort key is <KIND>#<record id>, so a (pk, sk) pair is unique.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	pk          TEXT NOT NULL,
	sk          TEXT NOT NULL,
	kind        TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	payload     TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (pk, sk)
);

CREATE INDEX IF NOT EXISTS idx_items_kind ON items(pk, kind);
CREATE INDEX IF NOT EXISTS idx_items_project ON items(project_id);
`
