package postgres

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_users",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					username TEXT NOT NULL UNIQUE,
					first_name TEXT NOT NULL DEFAULT '',
					last_name TEXT NOT NULL DEFAULT '',
					role TEXT NOT NULL CHECK (role IN ('student', 'teacher')),
					external_identity BOOLEAN NOT NULL DEFAULT FALSE,
					language TEXT NOT NULL DEFAULT '',
					birthday TIMESTAMPTZ,
					signup_date TIMESTAMPTZ,
					display_name TEXT,
					schoolname TEXT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
			`,
			DownSQL: `DROP TABLE IF EXISTS users;`,
		},
		{
			Version: 2,
			Name:    "create_runs_and_periods",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS runs (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					runcode TEXT NOT NULL,
					max_workgroup_size INTEGER NOT NULL CHECK (max_workgroup_size > 0),
					start_time TIMESTAMPTZ,
					end_time TIMESTAMPTZ,
					owner_id UUID NOT NULL REFERENCES users(id),
					student_count INTEGER NOT NULL DEFAULT 0,
					version BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_runs_runcode ON runs(runcode);
				CREATE INDEX IF NOT EXISTS idx_runs_owner ON runs(owner_id);

				CREATE TABLE IF NOT EXISTS periods (
					id UUID PRIMARY KEY,
					run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					name TEXT NOT NULL,
					position INTEGER NOT NULL DEFAULT 0,
					UNIQUE (run_id, name)
				);

				CREATE INDEX IF NOT EXISTS idx_periods_run ON periods(run_id);
			`,
			DownSQL: `
				DROP TABLE IF EXISTS periods;
				DROP TABLE IF EXISTS runs;
			`,
		},
		{
			Version: 3,
			Name:    "create_enrollments",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS enrollments (
					id UUID PRIMARY KEY,
					run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id),
					period_id UUID,
					period_name TEXT NOT NULL,
					enrolled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (run_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_enrollments_run ON enrollments(run_id);
				CREATE INDEX IF NOT EXISTS idx_enrollments_user ON enrollments(user_id);
			`,
			DownSQL: `DROP TABLE IF EXISTS enrollments;`,
		},
		{
			Version: 4,
			Name:    "create_workgroups",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS workgroups (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					period_id UUID,
					period_name TEXT NOT NULL DEFAULT '',
					version BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_workgroups_run ON workgroups(run_id);

				CREATE TABLE IF NOT EXISTS workgroup_members (
					workgroup_id UUID NOT NULL REFERENCES workgroups(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id),
					added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (workgroup_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_workgroup_members_user ON workgroup_members(user_id);
			`,
			DownSQL: `
				DROP TABLE IF EXISTS workgroup_members;
				DROP TABLE IF EXISTS workgroups;
			`,
		},
		{
			Version: 5,
			Name:    "create_attendance_entries",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS attendance_entries (
					id UUID PRIMARY KEY,
					workgroup_id UUID NOT NULL REFERENCES workgroups(id) ON DELETE CASCADE,
					run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
					login_timestamp TIMESTAMPTZ NOT NULL,
					present_user_ids TEXT[] NOT NULL DEFAULT '{}',
					absent_user_ids TEXT[] NOT NULL DEFAULT '{}'
				);

				CREATE INDEX IF NOT EXISTS idx_attendance_run ON attendance_entries(run_id, login_timestamp);
				CREATE INDEX IF NOT EXISTS idx_attendance_workgroup ON attendance_entries(workgroup_id, login_timestamp);
			`,
			DownSQL: `DROP TABLE IF EXISTS attendance_entries;`,
		},
		{
			Version: 6,
			Name:    "create_run_stats",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS run_stats (
					run_id UUID PRIMARY KEY REFERENCES runs(id) ON DELETE CASCADE,
					student_count INTEGER NOT NULL DEFAULT 0,
					workgroup_count INTEGER NOT NULL DEFAULT 0,
					last_launch_at TIMESTAMPTZ,
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
			DownSQL: `DROP TABLE IF EXISTS run_stats;`,
		},
	}
}
