package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS batches (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	name          TEXT NOT NULL,
	analysis_type TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'uploading',
	metrics       TEXT NOT NULL DEFAULT '{}',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS screenshots (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id      INTEGER NOT NULL REFERENCES batches(id),
	file_path     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	processing_ms INTEGER NOT NULL DEFAULT 0,
	width         INTEGER NOT NULL DEFAULT 0,
	height        INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	label_issues  TEXT NOT NULL DEFAULT '[]',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS components (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	screenshot_id INTEGER NOT NULL REFERENCES screenshots(id),
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	cta_type      TEXT NOT NULL DEFAULT 'none',
	reusable      INTEGER NOT NULL DEFAULT 0,
	region        TEXT,
	model         TEXT NOT NULL DEFAULT '',
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS elements (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	screenshot_id  INTEGER NOT NULL REFERENCES screenshots(id),
	component_id   INTEGER NOT NULL REFERENCES components(id),
	version        INTEGER NOT NULL DEFAULT 1,
	x_min          INTEGER NOT NULL,
	y_min          INTEGER NOT NULL,
	x_max          INTEGER NOT NULL,
	y_max          INTEGER NOT NULL,
	taxonomy_id    INTEGER,
	label          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	inference_ms   INTEGER NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT '',
	accuracy_score INTEGER,
	suggested_box  TEXT,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prompt_logs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL DEFAULT '',
	batch_id      INTEGER NOT NULL,
	screenshot_id INTEGER,
	component_id  INTEGER,
	element_id    INTEGER,
	log_type      TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	prompt        TEXT NOT NULL DEFAULT '',
	image_ref     TEXT NOT NULL DEFAULT '',
	raw_response  TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_batches_status ON batches(status);
CREATE INDEX IF NOT EXISTS idx_screenshots_batch_id ON screenshots(batch_id);
CREATE INDEX IF NOT EXISTS idx_components_screenshot_id ON components(screenshot_id);
CREATE INDEX IF NOT EXISTS idx_elements_screenshot_id ON elements(screenshot_id);
CREATE INDEX IF NOT EXISTS idx_elements_component_id ON elements(component_id);
CREATE INDEX IF NOT EXISTS idx_prompt_logs_batch_id ON prompt_logs(batch_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Batches

func (s *SQLiteStore) CreateBatch(ctx context.Context, name, analysisType string) (*model.Batch, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (name, analysis_type, status, metrics, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		name, analysisType, string(model.BatchStatusUploading), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert batch")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: batch id")
	}
	return &model.Batch{
		ID:           id,
		Name:         name,
		AnalysisType: analysisType,
		Status:       model.BatchStatusUploading,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

const batchColumns = `id, name, analysis_type, status, metrics, created_at, updated_at`

func (s *SQLiteStore) GetBatch(ctx context.Context, id int64) (*model.Batch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id)
	b, err := scanBatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "batch %d", id)
	}
	return b, err
}

func (s *SQLiteStore) ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch status %d", id)
	}
	return checkRowsAffected(res, "batch", id)
}

func (s *SQLiteStore) UpdateBatchMetrics(ctx context.Context, id int64, metrics model.BatchMetrics) error {
	raw, err := encodeMetrics(metrics)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE batches SET metrics = ?, updated_at = ? WHERE id = ?`,
		raw, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update batch metrics %d", id)
	}
	return checkRowsAffected(res, "batch", id)
}

// Screenshots

func (s *SQLiteStore) CreateScreenshot(ctx context.Context, batchID int64, filePath string) (*model.Screenshot, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO screenshots (batch_id, file_path, status, created_at) VALUES (?, ?, ?, ?)`,
		batchID, filePath, string(model.ScreenshotStatusPending), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert screenshot for batch %d", batchID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: screenshot id")
	}
	return &model.Screenshot{
		ID:        id,
		BatchID:   batchID,
		FilePath:  filePath,
		Status:    model.ScreenshotStatusPending,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) ListScreenshots(ctx context.Context, batchID int64) ([]model.Screenshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, file_path, status, processing_ms, width, height, error, label_issues, created_at
		 FROM screenshots WHERE batch_id = ? ORDER BY id`,
		batchID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list screenshots for batch %d", batchID)
	}
	defer rows.Close()

	var out []model.Screenshot
	for rows.Next() {
		var (
			sc     model.Screenshot
			issues string
		)
		if err := rows.Scan(&sc.ID, &sc.BatchID, &sc.FilePath, &sc.Status, &sc.ProcessingMs,
			&sc.Width, &sc.Height, &sc.Error, &issues, &sc.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan screenshot")
		}
		if sc.LabelIssues, err = decodeIssues([]byte(issues)); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list screenshots iterate")
}

func (s *SQLiteStore) UpdateScreenshotStatus(ctx context.Context, id int64, status model.ScreenshotStatus, processingMs int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET status = ?, processing_ms = ?, error = ? WHERE id = ?`,
		string(status), processingMs, errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update screenshot status %d", id)
	}
	return checkRowsAffected(res, "screenshot", id)
}

func (s *SQLiteStore) UpdateScreenshotDimensions(ctx context.Context, id int64, width, height int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET width = ?, height = ? WHERE id = ?`,
		width, height, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update screenshot dimensions %d", id)
	}
	return checkRowsAffected(res, "screenshot", id)
}

func (s *SQLiteStore) UpdateScreenshotLabelIssues(ctx context.Context, id int64, issues []model.LabelIssue) error {
	raw, err := encodeIssues(issues)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE screenshots SET label_issues = ? WHERE id = ?`, raw, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update screenshot label issues %d", id)
	}
	return checkRowsAffected(res, "screenshot", id)
}

// Components and elements

func (s *SQLiteStore) DeleteScreenshotResults(ctx context.Context, screenshotID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM elements WHERE screenshot_id = ?`, screenshotID); err != nil {
		return eris.Wrapf(err, "sqlite: delete elements for screenshot %d", screenshotID)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM components WHERE screenshot_id = ?`, screenshotID); err != nil {
		return eris.Wrapf(err, "sqlite: delete components for screenshot %d", screenshotID)
	}
	return nil
}

func (s *SQLiteStore) CreateComponent(ctx context.Context, c *model.Component) error {
	region, err := encodeBox(c.Region)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO components (screenshot_id, name, description, cta_type, reusable, region,
		 model, duration_ms, input_tokens, output_tokens, cost, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ScreenshotID, c.Name, c.Description, string(c.CTAType), c.Reusable, region,
		c.Provenance.Model, c.Provenance.DurationMs, c.Provenance.InputTokens, c.Provenance.OutputTokens,
		c.Provenance.Cost, string(c.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert component for screenshot %d", c.ScreenshotID)
	}
	c.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: component id")
}

func (s *SQLiteStore) ListComponents(ctx context.Context, screenshotID int64) ([]model.Component, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, screenshot_id, name, description, cta_type, reusable, region,
		 model, duration_ms, input_tokens, output_tokens, cost, status
		 FROM components WHERE screenshot_id = ? ORDER BY id`,
		screenshotID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list components for screenshot %d", screenshotID)
	}
	defer rows.Close()

	var out []model.Component
	for rows.Next() {
		var (
			c      model.Component
			region sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.ScreenshotID, &c.Name, &c.Description, &c.CTAType, &c.Reusable, &region,
			&c.Provenance.Model, &c.Provenance.DurationMs, &c.Provenance.InputTokens, &c.Provenance.OutputTokens,
			&c.Provenance.Cost, &c.Status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan component")
		}
		if region.Valid {
			if c.Region, err = decodeBox(&region.String); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list components iterate")
}

func (s *SQLiteStore) CreateElements(ctx context.Context, elements []model.Element) (int64, error) {
	if len(elements) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin elements tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO elements (screenshot_id, component_id, version, x_min, y_min, x_max, y_max,
		 taxonomy_id, label, description, inference_ms, status, accuracy_score, suggested_box, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare element insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range elements {
		suggested, err := encodeBox(e.SuggestedBox)
		if err != nil {
			return 0, err
		}
		version := e.Version
		if version <= 0 {
			version = 1
		}
		if _, err := stmt.ExecContext(ctx,
			e.ScreenshotID, e.ComponentID, version, e.Box.XMin, e.Box.YMin, e.Box.XMax, e.Box.YMax,
			e.TaxonomyID, e.Label, e.Description, e.InferenceMs, e.Status, e.AccuracyScore, suggested, now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert element %q", e.Label)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit elements")
	}
	return int64(len(elements)), nil
}

const elementColumns = `id, screenshot_id, component_id, version, x_min, y_min, x_max, y_max,
	taxonomy_id, label, description, inference_ms, status, accuracy_score, suggested_box, updated_at`

func (s *SQLiteStore) ListElements(ctx context.Context, filter model.ElementFilter) ([]model.Element, error) {
	query := `SELECT ` + elementColumns + ` FROM elements WHERE 1=1`
	var args []any

	if filter.BatchID > 0 {
		query += ` AND screenshot_id IN (SELECT id FROM screenshots WHERE batch_id = ?)`
		args = append(args, filter.BatchID)
	}
	if filter.ScreenshotID > 0 {
		query += ` AND screenshot_id = ?`
		args = append(args, filter.ScreenshotID)
	}
	if filter.ComponentID > 0 {
		query += ` AND component_id = ?`
		args = append(args, filter.ComponentID)
	}
	if filter.Unscored {
		query += ` AND accuracy_score IS NULL`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list elements")
	}
	defer rows.Close()

	var out []model.Element
	for rows.Next() {
		var (
			e         model.Element
			taxonomy  sql.NullInt64
			score     sql.NullInt64
			suggested sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ScreenshotID, &e.ComponentID, &e.Version,
			&e.Box.XMin, &e.Box.YMin, &e.Box.XMax, &e.Box.YMax,
			&taxonomy, &e.Label, &e.Description, &e.InferenceMs, &e.Status, &score, &suggested, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan element")
		}
		if taxonomy.Valid {
			e.TaxonomyID = &taxonomy.Int64
		}
		if score.Valid {
			e.AccuracyScore = intPtr(&score.Int64)
		}
		if suggested.Valid {
			if e.SuggestedBox, err = decodeBox(&suggested.String); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list elements iterate")
}

func (s *SQLiteStore) UpdateElementAccuracy(ctx context.Context, id int64, score int, suggested *geometry.PixelBox) error {
	box, err := encodeBox(suggested)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE elements SET accuracy_score = ?, suggested_box = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		score, box, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update element accuracy %d", id)
	}
	return checkRowsAffected(res, "element", id)
}

// Prompt logs

func (s *SQLiteStore) AppendPromptLog(ctx context.Context, l *model.PromptLog) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompt_logs (run_id, batch_id, screenshot_id, component_id, element_id, log_type,
		 provider, model, prompt, image_ref, raw_response, input_tokens, output_tokens, cost,
		 duration_ms, started_at, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, l.BatchID, l.ScreenshotID, l.ComponentID, l.ElementID, string(l.LogType),
		l.Provider, l.Model, l.Prompt, l.ImageRef, l.RawResponse, l.InputTokens, l.OutputTokens, l.Cost,
		l.DurationMs, l.StartedAt.UTC(), l.CompletedAt.UTC(), l.Error,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert prompt log for batch %d", l.BatchID)
	}
	l.ID, err = res.LastInsertId()
	return eris.Wrap(err, "sqlite: prompt log id")
}

func (s *SQLiteStore) ListPromptLogs(ctx context.Context, batchID int64, limit int) ([]model.PromptLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, batch_id, screenshot_id, component_id, element_id, log_type, provider, model,
		 prompt, image_ref, raw_response, input_tokens, output_tokens, cost, duration_ms,
		 started_at, completed_at, error
		 FROM prompt_logs WHERE batch_id = ? ORDER BY id LIMIT ?`,
		batchID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list prompt logs for batch %d", batchID)
	}
	defer rows.Close()

	var out []model.PromptLog
	for rows.Next() {
		var (
			l                     model.PromptLog
			shot, comp, elementID sql.NullInt64
		)
		if err := rows.Scan(&l.ID, &l.RunID, &l.BatchID, &shot, &comp, &elementID, &l.LogType, &l.Provider, &l.Model,
			&l.Prompt, &l.ImageRef, &l.RawResponse, &l.InputTokens, &l.OutputTokens, &l.Cost, &l.DurationMs,
			&l.StartedAt, &l.CompletedAt, &l.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt log")
		}
		l.ScreenshotID = nullInt64(shot)
		l.ComponentID = nullInt64(comp)
		l.ElementID = nullInt64(elementID)
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list prompt logs iterate")
}

func (s *SQLiteStore) PromptLogTotals(ctx context.Context, batchID int64) (*model.PromptLogTotals, error) {
	var t model.PromptLogTotals
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		 COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
		 COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
		 COALESCE(SUM(cost), 0), COALESCE(SUM(duration_ms), 0)
		 FROM prompt_logs WHERE batch_id = ?`,
		batchID,
	).Scan(&t.Calls, &t.Failed, &t.InputTokens, &t.OutputTokens, &t.Cost, &t.DurationMs)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: prompt log totals for batch %d", batchID)
	}
	return &t, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBatch(row scannable) (*model.Batch, error) {
	var (
		b       model.Batch
		metrics string
	)
	err := row.Scan(&b.ID, &b.Name, &b.AnalysisType, &b.Status, &metrics, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan batch")
	}
	if err := decodeMetrics(metrics, &b.Metrics); err != nil {
		return nil, err
	}
	return &b, nil
}
