package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `
	user_id          TEXT NOT NULL,
	date             DATE NOT NULL,
	start_time       TIMESTAMPTZ,
	end_time         TIMESTAMPTZ,
	duration_minutes INT NOT NULL DEFAULT 0,
	in_progress      BOOLEAN NOT NULL DEFAULT FALSE,
	status           TEXT NOT NULL DEFAULT '' CHECK (status IN ('', 'planned', 'completed')),
	notes            TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()`

const schema = `
CREATE TABLE IF NOT EXISTS fitness_workouts (
	id    TEXT PRIMARY KEY,
	title TEXT NOT NULL,` + sessionColumns + `
);

CREATE TABLE IF NOT EXISTS fitness_cardio (
	id            TEXT PRIMARY KEY,
	activity_type TEXT NOT NULL,` + sessionColumns + `
);

CREATE TABLE IF NOT EXISTS fitness_sports (
	id            TEXT PRIMARY KEY,
	activity_type TEXT NOT NULL,` + sessionColumns + `
);

CREATE TABLE IF NOT EXISTS fitness_stretching (
	id    TEXT PRIMARY KEY,
	title TEXT NOT NULL,` + sessionColumns + `
);

CREATE UNIQUE INDEX IF NOT EXISTS fitness_workouts_in_progress_key ON fitness_workouts (user_id) WHERE in_progress;
CREATE UNIQUE INDEX IF NOT EXISTS fitness_cardio_in_progress_key ON fitness_cardio (user_id) WHERE in_progress;
CREATE UNIQUE INDEX IF NOT EXISTS fitness_sports_in_progress_key ON fitness_sports (user_id) WHERE in_progress;
CREATE UNIQUE INDEX IF NOT EXISTS fitness_stretching_in_progress_key ON fitness_stretching (user_id) WHERE in_progress;

CREATE TABLE IF NOT EXISTS fitness_exercises (
	id         TEXT PRIMARY KEY,
	workout_id TEXT NOT NULL REFERENCES fitness_workouts(id),
	name       TEXT NOT NULL,
	position   INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fitness_exercises_workout_id ON fitness_exercises(workout_id);

CREATE TABLE IF NOT EXISTS fitness_sets (
	id          TEXT PRIMARY KEY,
	exercise_id TEXT NOT NULL REFERENCES fitness_exercises(id),
	reps        INT NOT NULL DEFAULT 0,
	weight      NUMERIC(8,2) NOT NULL DEFAULT 0,
	position    INT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_fitness_sets_exercise_id ON fitness_sets(exercise_id);

CREATE TABLE IF NOT EXISTS meals (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	instructions JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS meal_ingredients (
	id       TEXT PRIMARY KEY,
	meal_id  TEXT NOT NULL REFERENCES meals(id),
	name     TEXT NOT NULL,
	quantity TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_meal_ingredients_meal_id ON meal_ingredients(meal_id);

CREATE TABLE IF NOT EXISTS planned_meals (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	meal_id    TEXT NOT NULL REFERENCES meals(id),
	title      TEXT NOT NULL,
	date       DATE NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cooking_sessions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	meal_id      TEXT NOT NULL REFERENCES meals(id),
	in_progress  BOOLEAN NOT NULL DEFAULT FALSE,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ,
	current_step INT NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS cooking_sessions_in_progress_key ON cooking_sessions (user_id) WHERE in_progress;

CREATE TABLE IF NOT EXISTS cooked_meals (
	user_id        TEXT NOT NULL,
	meal_id        TEXT NOT NULL REFERENCES meals(id),
	cook_count     INT NOT NULL DEFAULT 0,
	last_cooked_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, meal_id)
);

CREATE TABLE IF NOT EXISTS scratchpad_notes (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title   TEXT NOT NULL DEFAULT '',
	date    DATE
);

CREATE TABLE IF NOT EXISTS expenses (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(12,2) NOT NULL DEFAULT 0,
	date        DATE
);

CREATE TABLE IF NOT EXISTS calendar_events (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	start_time  TIMESTAMPTZ NOT NULL,
	end_time    TIMESTAMPTZ NOT NULL,
	source      TEXT,
	source_id   TEXT,
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS calendar_events_source_key ON calendar_events (user_id, source, source_id) WHERE source IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_calendar_events_user_start ON calendar_events (user_id, start_time);

CREATE TABLE IF NOT EXISTS outbox (
	event_id        BIGSERIAL PRIMARY KEY,
	user_id         TEXT NOT NULL,
	aggregate_type  TEXT NOT NULL,
	aggregate_id    TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	topic           TEXT NOT NULL,
	partition_key   TEXT NOT NULL,
	payload         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	claimed_at      TIMESTAMPTZ,
	published_at    TIMESTAMPTZ,
	attempts        INT NOT NULL DEFAULT 0,
	last_error      TEXT,
	next_attempt_at TIMESTAMPTZ,
	failed_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (event_id) WHERE published_at IS NULL AND failed_at IS NULL;

CREATE TABLE IF NOT EXISTS change_log (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT NOT NULL,
	aggregate_type TEXT NOT NULL DEFAULT '',
	aggregate_id   TEXT NOT NULL DEFAULT '',
	topic          TEXT NOT NULL,
	partition      INT NOT NULL,
	record_offset  BIGINT NOT NULL,
	payload        JSONB NOT NULL,
	received_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (topic, partition, record_offset)
);
`

// userScopedTables carry a user_id column and get a row level security policy
// keyed on the app.user_id setting.
var userScopedTables = []string{
	"fitness_workouts",
	"fitness_cardio",
	"fitness_sports",
	"fitness_stretching",
	"meals",
	"planned_meals",
	"cooking_sessions",
	"cooked_meals",
	"scratchpad_notes",
	"expenses",
	"calendar_events",
}

// Migrate ensures tables, indexes and policies exist. Call once at startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return err
	}
	for _, table := range userScopedTables {
		if _, err := pool.Exec(ctx, rlsStatement(table)); err != nil {
			return err
		}
	}
	return nil
}

func rlsStatement(table string) string {
	ident := dialect.Quote(table)
	policy := dialect.Quote(table + "_user_isolation")
	return `ALTER TABLE ` + ident + ` ENABLE ROW LEVEL SECURITY;
DROP POLICY IF EXISTS ` + policy + ` ON ` + ident + `;
CREATE POLICY ` + policy + ` ON ` + ident + `
	USING (user_id = current_setting('app.user_id', true))
	WITH CHECK (user_id = current_setting('app.user_id', true));`
}
