package postgresql

// migrations returns the fixed schema. Index tables themselves are created
// on demand by EnsureIndex; only the registry is versioned here.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS document_indices (
				index_name TEXT PRIMARY KEY,
				table_name TEXT NOT NULL UNIQUE,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			);
		`,
	}
}
