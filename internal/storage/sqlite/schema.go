package sqlite

const schema = `
-- Last dedup key seen per agent and scope
CREATE TABLE IF NOT EXISTS dedup_ledger (
    agent_id TEXT NOT NULL,
    scope TEXT NOT NULL,
    key TEXT NOT NULL,
    seen_at INTEGER NOT NULL,
    repeats INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (agent_id, scope)
);

CREATE INDEX IF NOT EXISTS idx_dedup_ledger_seen_at ON dedup_ledger(seen_at);
`
