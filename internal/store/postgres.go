package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/db"
	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest per-screenshot writes.
var preparedStatements = map[string]string{
	"update_screenshot_status": `UPDATE screenshots SET status = $1, processing_ms = $2, error = $3 WHERE id = $4`,
	"update_screenshot_dims":   `UPDATE screenshots SET width = $1, height = $2 WHERE id = $3`,
	"update_batch_status":      `UPDATE batches SET status = $1, updated_at = $2 WHERE id = $3`,
	"insert_prompt_log":        insertPromptLogSQL,
}

const insertPromptLogSQL = `INSERT INTO prompt_logs (run_id, batch_id, screenshot_id, component_id, element_id, log_type,
	provider, model, prompt, image_ref, raw_response, input_tokens, output_tokens, cost,
	duration_ms, started_at, completed_at, error)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	analysis_type TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'uploading',
	metrics       JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS screenshots (
	id            BIGSERIAL PRIMARY KEY,
	batch_id      BIGINT NOT NULL REFERENCES batches(id),
	file_path     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	processing_ms BIGINT NOT NULL DEFAULT 0,
	width         INTEGER NOT NULL DEFAULT 0,
	height        INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	label_issues  JSONB NOT NULL DEFAULT '[]',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS components (
	id            BIGSERIAL PRIMARY KEY,
	screenshot_id BIGINT NOT NULL REFERENCES screenshots(id),
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	cta_type      TEXT NOT NULL DEFAULT 'none',
	reusable      BOOLEAN NOT NULL DEFAULT false,
	region        JSONB,
	model         TEXT NOT NULL DEFAULT '',
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS elements (
	id             BIGSERIAL PRIMARY KEY,
	screenshot_id  BIGINT NOT NULL REFERENCES screenshots(id),
	component_id   BIGINT NOT NULL REFERENCES components(id) ON DELETE CASCADE,
	version        INTEGER NOT NULL DEFAULT 1,
	x_min          INTEGER NOT NULL,
	y_min          INTEGER NOT NULL,
	x_max          INTEGER NOT NULL,
	y_max          INTEGER NOT NULL,
	taxonomy_id    BIGINT,
	label          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	inference_ms   BIGINT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT '',
	accuracy_score INTEGER,
	suggested_box  JSONB,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prompt_logs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        TEXT NOT NULL DEFAULT '',
	batch_id      BIGINT NOT NULL,
	screenshot_id BIGINT,
	component_id  BIGINT,
	element_id    BIGINT,
	log_type      TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	prompt        TEXT NOT NULL DEFAULT '',
	image_ref     TEXT NOT NULL DEFAULT '',
	raw_response  TEXT NOT NULL DEFAULT '',
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_screenshots_batch_id ON screenshots(batch_id);
CREATE INDEX IF NOT EXISTS idx_components_screenshot_id ON components(screenshot_id);
CREATE INDEX IF NOT EXISTS idx_elements_screenshot_id ON elements(screenshot_id);
CREATE INDEX IF NOT EXISTS idx_elements_component_id ON elements(component_id);
CREATE INDEX IF NOT EXISTS idx_elements_unscored ON elements(screenshot_id) WHERE accuracy_score IS NULL;
CREATE INDEX IF NOT EXISTS idx_prompt_logs_batch_id ON prompt_logs(batch_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Batches

func (s *PostgresStore) CreateBatch(ctx context.Context, name, analysisType string) (*model.Batch, error) {
	now := time.Now().UTC()
	b := &model.Batch{
		Name:         name,
		AnalysisType: analysisType,
		Status:       model.BatchStatusUploading,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO batches (name, analysis_type, status, metrics, created_at, updated_at)
		 VALUES ($1, $2, $3, '{}', $4, $5) RETURNING id`,
		name, analysisType, string(model.BatchStatusUploading), now, now,
	).Scan(&b.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert batch")
	}
	return b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, id)
	b, err := scanPgBatch(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %d", id)
	}
	return b, err
}

func (s *PostgresStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanPgBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch status %d", id)
	}
	return checkTag(tag, "batch", id)
}

func (s *PostgresStore) UpdateBatchMetrics(ctx context.Context, id int64, metrics model.BatchMetrics) error {
	raw, err := encodeMetrics(metrics)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches SET metrics = $1, updated_at = $2 WHERE id = $3`,
		raw, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update batch metrics %d", id)
	}
	return checkTag(tag, "batch", id)
}

// Screenshots

func (s *PostgresStore) CreateScreenshot(ctx context.Context, batchID int64, filePath string) (*model.Screenshot, error) {
	now := time.Now().UTC()
	sc := &model.Screenshot{
		BatchID:   batchID,
		FilePath:  filePath,
		Status:    model.ScreenshotStatusPending,
		CreatedAt: now,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO screenshots (batch_id, file_path, status, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		batchID, filePath, string(model.ScreenshotStatusPending), now,
	).Scan(&sc.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert screenshot for batch %d", batchID)
	}
	return sc, nil
}

func (s *PostgresStore) ListScreenshots(ctx context.Context, batchID int64) ([]model.Screenshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, batch_id, file_path, status, processing_ms, width, height, error, label_issues, created_at
		 FROM screenshots WHERE batch_id = $1 ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list screenshots for batch %d", batchID)
	}
	defer rows.Close()

	var out []model.Screenshot
	for rows.Next() {
		var (
			sc     model.Screenshot
			issues []byte
		)
		if err := rows.Scan(&sc.ID, &sc.BatchID, &sc.FilePath, &sc.Status, &sc.ProcessingMs,
			&sc.Width, &sc.Height, &sc.Error, &issues, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan screenshot")
		}
		if sc.LabelIssues, err = decodeIssues(issues); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list screenshots iterate")
}

func (s *PostgresStore) UpdateScreenshotStatus(ctx context.Context, id int64, status model.ScreenshotStatus, processingMs int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screenshots SET status = $1, processing_ms = $2, error = $3 WHERE id = $4`,
		string(status), processingMs, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update screenshot status %d", id)
	}
	return checkTag(tag, "screenshot", id)
}

func (s *PostgresStore) UpdateScreenshotDimensions(ctx context.Context, id int64, width, height int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE screenshots SET width = $1, height = $2 WHERE id = $3`,
		width, height, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update screenshot dimensions %d", id)
	}
	return checkTag(tag, "screenshot", id)
}

func (s *PostgresStore) UpdateScreenshotLabelIssues(ctx context.Context, id int64, issues []model.LabelIssue) error {
	raw, err := encodeIssues(issues)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE screenshots SET label_issues = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update screenshot label issues %d", id)
	}
	return checkTag(tag, "screenshot", id)
}

// Components and elements

func (s *PostgresStore) DeleteScreenshotResults(ctx context.Context, screenshotID int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM elements WHERE screenshot_id = $1`, screenshotID); err != nil {
			return eris.Wrapf(err, "postgres: delete elements for screenshot %d", screenshotID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM components WHERE screenshot_id = $1`, screenshotID); err != nil {
			return eris.Wrapf(err, "postgres: delete components for screenshot %d", screenshotID)
		}
		return nil
	})
}

func (s *PostgresStore) CreateComponent(ctx context.Context, c *model.Component) error {
	region, err := encodeBox(c.Region)
	if err != nil {
		return err
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO components (screenshot_id, name, description, cta_type, reusable, region,
		 model, duration_ms, input_tokens, output_tokens, cost, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		c.ScreenshotID, c.Name, c.Description, string(c.CTAType), c.Reusable, region,
		c.Provenance.Model, c.Provenance.DurationMs, c.Provenance.InputTokens, c.Provenance.OutputTokens,
		c.Provenance.Cost, string(c.Status),
	).Scan(&c.ID)
	return eris.Wrapf(err, "postgres: insert component for screenshot %d", c.ScreenshotID)
}

func (s *PostgresStore) ListComponents(ctx context.Context, screenshotID int64) ([]model.Component, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, screenshot_id, name, description, cta_type, reusable, region,
		 model, duration_ms, input_tokens, output_tokens, cost, status
		 FROM components WHERE screenshot_id = $1 ORDER BY id`,
		screenshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list components for screenshot %d", screenshotID)
	}
	defer rows.Close()

	var out []model.Component
	for rows.Next() {
		var (
			c      model.Component
			region *[]byte
		)
		if err := rows.Scan(&c.ID, &c.ScreenshotID, &c.Name, &c.Description, &c.CTAType, &c.Reusable, &region,
			&c.Provenance.Model, &c.Provenance.DurationMs, &c.Provenance.InputTokens, &c.Provenance.OutputTokens,
			&c.Provenance.Cost, &c.Status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan component")
		}
		if c.Region, err = decodeBoxBytes(region); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list components iterate")
}

var elementCopyColumns = []string{
	"screenshot_id", "component_id", "version", "x_min", "y_min", "x_max", "y_max",
	"taxonomy_id", "label", "description", "inference_ms", "status", "accuracy_score", "suggested_box", "updated_at",
}

// CreateElements bulk-loads elements with COPY. Generated IDs are not
// returned; read them back with ListElements.
func (s *PostgresStore) CreateElements(ctx context.Context, elements []model.Element) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(elements))
	for _, e := range elements {
		suggested, err := encodeBox(e.SuggestedBox)
		if err != nil {
			return 0, err
		}
		version := e.Version
		if version <= 0 {
			version = 1
		}
		rows = append(rows, []any{
			e.ScreenshotID, e.ComponentID, version, e.Box.XMin, e.Box.YMin, e.Box.XMax, e.Box.YMax,
			e.TaxonomyID, e.Label, e.Description, e.InferenceMs, e.Status, e.AccuracyScore, suggested, now,
		})
	}
	return db.CopyFrom(ctx, s.pool, "elements", elementCopyColumns, rows)
}

func (s *PostgresStore) ListElements(ctx context.Context, filter model.ElementFilter) ([]model.Element, error) {
	query := `SELECT ` + elementColumns + ` FROM elements WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BatchID > 0 {
		query += fmt.Sprintf(` AND screenshot_id IN (SELECT id FROM screenshots WHERE batch_id = $%d)`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	if filter.ScreenshotID > 0 {
		query += fmt.Sprintf(` AND screenshot_id = $%d`, argIdx)
		args = append(args, filter.ScreenshotID)
		argIdx++
	}
	if filter.ComponentID > 0 {
		query += fmt.Sprintf(` AND component_id = $%d`, argIdx)
		args = append(args, filter.ComponentID)
	}
	if filter.Unscored {
		query += ` AND accuracy_score IS NULL`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list elements")
	}
	defer rows.Close()

	var out []model.Element
	for rows.Next() {
		var (
			e         model.Element
			suggested *[]byte
		)
		if err := rows.Scan(&e.ID, &e.ScreenshotID, &e.ComponentID, &e.Version,
			&e.Box.XMin, &e.Box.YMin, &e.Box.XMax, &e.Box.YMax,
			&e.TaxonomyID, &e.Label, &e.Description, &e.InferenceMs, &e.Status, &e.AccuracyScore, &suggested, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan element")
		}
		if e.SuggestedBox, err = decodeBoxBytes(suggested); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list elements iterate")
}

func (s *PostgresStore) UpdateElementAccuracy(ctx context.Context, id int64, score int, suggested *geometry.PixelBox) error {
	box, err := encodeBox(suggested)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE elements SET accuracy_score = $1, suggested_box = $2, version = version + 1, updated_at = $3 WHERE id = $4`,
		score, box, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update element accuracy %d", id)
	}
	return checkTag(tag, "element", id)
}

// Prompt logs

func (s *PostgresStore) AppendPromptLog(ctx context.Context, l *model.PromptLog) error {
	err := s.pool.QueryRow(ctx, insertPromptLogSQL,
		l.RunID, l.BatchID, l.ScreenshotID, l.ComponentID, l.ElementID, string(l.LogType),
		l.Provider, l.Model, l.Prompt, l.ImageRef, l.RawResponse, l.InputTokens, l.OutputTokens, l.Cost,
		l.DurationMs, l.StartedAt.UTC(), l.CompletedAt.UTC(), l.Error,
	).Scan(&l.ID)
	return eris.Wrapf(err, "postgres: insert prompt log for batch %d", l.BatchID)
}

func (s *PostgresStore) ListPromptLogs(ctx context.Context, batchID int64, limit int) ([]model.PromptLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, batch_id, screenshot_id, component_id, element_id, log_type, provider, model,
		 prompt, image_ref, raw_response, input_tokens, output_tokens, cost, duration_ms,
		 started_at, completed_at, error
		 FROM prompt_logs WHERE batch_id = $1 ORDER BY id LIMIT $2`,
		batchID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list prompt logs for batch %d", batchID)
	}
	defer rows.Close()

	var out []model.PromptLog
	for rows.Next() {
		var l model.PromptLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.BatchID, &l.ScreenshotID, &l.ComponentID, &l.ElementID, &l.LogType,
			&l.Provider, &l.Model, &l.Prompt, &l.ImageRef, &l.RawResponse, &l.InputTokens, &l.OutputTokens, &l.Cost,
			&l.DurationMs, &l.StartedAt, &l.CompletedAt, &l.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt log")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list prompt logs iterate")
}

func (s *PostgresStore) PromptLogTotals(ctx context.Context, batchID int64) (*model.PromptLogTotals, error) {
	var t model.PromptLogTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		 COUNT(*) FILTER (WHERE error <> ''),
		 COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		 COALESCE(SUM(cost), 0), COALESCE(SUM(duration_ms), 0)
		 FROM prompt_logs WHERE batch_id = $1`,
		batchID,
	).Scan(&t.Calls, &t.Failed, &t.InputTokens, &t.OutputTokens, &t.Cost, &t.DurationMs)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: prompt log totals for batch %d", batchID)
	}
	return &t, nil
}

func checkTag(tag pgconn.CommandTag, entity string, id int64) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func scanPgBatch(row scannable) (*model.Batch, error) {
	var (
		b       model.Batch
		metrics []byte
	)
	err := row.Scan(&b.ID, &b.Name, &b.AnalysisType, &b.Status, &metrics, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan batch")
	}
	if err := decodeMetrics(string(metrics), &b.Metrics); err != nil {
		return nil, err
	}
	return &b, nil
}
