package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Flow records, one row per storage key
			CREATE TABLE flow_records (
				key VARCHAR(255) PRIMARY KEY,
				value TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_flow_records_updated_at ON flow_records(updated_at);
		`,
	}
}
