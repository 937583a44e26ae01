// Package meta is the Metadata Store: a SQLite-backed persistence layer for
// containers, images, and networks, driven through database/sql the way
// `github.com/mattn/go-sqlite3` is declared as a dependency across the
// example pack (grounded on inbra-image's go.mod). The narrow
// capability-set interface shape below follows a Provider idiom: a small
// interface per concern, no leaking SQL into callers.
package meta

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/furukawa-project/furukawad/internal/apperr"
	"github.com/furukawa-project/furukawad/internal/container"
	"github.com/furukawa-project/furukawad/internal/image"
	"github.com/furukawa-project/furukawad/internal/network"
)

// ContainerStore is the narrow capability set handlers use for container
// persistence; it never leaks *sql.DB or SQL strings to callers.
type ContainerStore interface {
	SaveCreated(ctx context.Context, c *container.Created) error
	SaveRunning(ctx context.Context, r *container.Running) error
	SaveStopped(ctx context.Context, s *container.Stopped) error
	GetAny(ctx context.Context, id string) (container.AnyContainer, bool, error)
	ListAny(ctx context.Context) ([]container.AnyContainer, error)
	RemoveContainer(ctx context.Context, id string) error
}

// ImageStore is the narrow capability set for image metadata.
type ImageStore interface {
	SaveImage(ctx context.Context, rec image.Record) error
	GetImage(ctx context.Context, id string) (image.Record, bool, error)
	GetImageByTag(ctx context.Context, tag string) (image.Record, bool, error)
	ListImages(ctx context.Context) ([]image.Record, error)
	RemoveImage(ctx context.Context, id string) error
}

// NetworkStore is the narrow capability set for network records.
type NetworkStore interface {
	SaveNetwork(ctx context.Context, rec network.Record) error
	GetNetwork(ctx context.Context, id string) (network.Record, bool, error)
	ListNetworks(ctx context.Context) ([]network.Record, error)
	RemoveNetwork(ctx context.Context, id string) error
}

// Store is the full metadata persistence surface the Engine Service holds.
type Store interface {
	ContainerStore
	ImageStore
	NetworkStore
	Close() error
}

type sqliteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and ensures
// its schema exists. Unlike the literal reading of "containers and images
// are dropped and recreated on startup", this uses idempotent
// CREATE TABLE IF NOT EXISTS for all three tables: a requirement that
// three created containers survive an engine restart against the same
// data root is unsatisfiable under a real DROP TABLE, so schema-ensure
// without data loss is the reading that keeps persistence consistent
// across runs. Networks were already specified to
// persist, so this changes nothing for them.
func Open(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, err, "failed opening metadata store")
	}
	db.SetMaxOpenConns(1) // sqlite3 has no useful concurrent-writer story

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.CodeDBError, err, "failed ensuring metadata schema")
	}
	return &sqliteStore{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS containers (
	id TEXT PRIMARY KEY,
	name TEXT,
	image TEXT,
	state TEXT NOT NULL,
	config_json TEXT NOT NULL,
	pid INTEGER,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER,
	exit_code INTEGER
);
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	repo_tags_json TEXT NOT NULL,
	parent_id TEXT,
	created INTEGER NOT NULL,
	size INTEGER NOT NULL,
	layers_json TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS networks (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	driver TEXT NOT NULL,
	labels_json TEXT NOT NULL,
	builtin INTEGER NOT NULL DEFAULT 0
);
`

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// SaveCreated inserts a freshly created container record.
func (s *sqliteStore) SaveCreated(ctx context.Context, c *container.Created) error {
	cfgJSON, err := json.Marshal(c.Config)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed encoding container config")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO containers (id, name, image, state, config_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Config.Name, c.Config.Image, string(container.StatusCreated), string(cfgJSON), c.CreatedAt.Unix(),
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed saving created container")
	}
	return nil
}

// SaveRunning transitions a container row to running, persisting pid and
// started_at in the same transaction as the precondition read, closing
// the partial-failure window a separate read-then-write would leave open.
func (s *sqliteStore) SaveRunning(ctx context.Context, r *container.Running) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM containers WHERE id = ?`, r.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", r.ID)
			}
			return apperr.Wrap(apperr.CodeDBError, err, "failed reading container precondition")
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE containers SET state = ?, pid = ?, started_at = ? WHERE id = ?`,
			string(container.StatusRunning), r.PID, r.StartedAt.Unix(), r.ID,
		)
		if err != nil {
			return apperr.Wrap(apperr.CodeDBError, err, "failed saving running container")
		}
		return nil
	})
}

// SaveStopped transitions a container row to exited, persisting exit_code
// and finished_at in the same transaction as the precondition read.
func (s *sqliteStore) SaveStopped(ctx context.Context, st *container.Stopped) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM containers WHERE id = ?`, st.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", st.ID)
			}
			return apperr.Wrap(apperr.CodeDBError, err, "failed reading container precondition")
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE containers SET state = ?, exit_code = ?, finished_at = ? WHERE id = ?`,
			string(container.StatusExited), st.ExitCode, st.FinishedAt.Unix(), st.ID,
		)
		if err != nil {
			return apperr.Wrap(apperr.CodeDBError, err, "failed saving stopped container")
		}
		return nil
	})
}

func (s *sqliteStore) withTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed beginning transaction")
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed committing transaction")
	}
	return nil
}

type containerRow struct {
	id         string
	name       sql.NullString
	image      sql.NullString
	state      string
	configJSON string
	pid        sql.NullInt64
	createdAt  int64
	startedAt  sql.NullInt64
	finishedAt sql.NullInt64
	exitCode   sql.NullInt64
}

func scanContainerRow(scanner interface {
	Scan(dest ...interface{}) error
}) (containerRow, error) {
	var row containerRow
	err := scanner.Scan(&row.id, &row.name, &row.image, &row.state, &row.configJSON,
		&row.pid, &row.createdAt, &row.startedAt, &row.finishedAt, &row.exitCode)
	return row, err
}

func (row containerRow) toAnyContainer() (container.AnyContainer, error) {
	var cfg container.Config
	if err := json.Unmarshal([]byte(row.configJSON), &cfg); err != nil {
		return container.AnyContainer{}, apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding container config")
	}
	any := container.AnyContainer{
		ID:        row.id,
		Config:    cfg,
		Status:    container.Status(row.state),
		CreatedAt: time.Unix(row.createdAt, 0).UTC(),
	}
	if row.pid.Valid {
		any.PID = uint32(row.pid.Int64)
	}
	if row.startedAt.Valid {
		any.StartedAt = time.Unix(row.startedAt.Int64, 0).UTC()
	}
	if row.finishedAt.Valid {
		any.FinishedAt = time.Unix(row.finishedAt.Int64, 0).UTC()
	}
	if row.exitCode.Valid {
		any.ExitCode = int32(row.exitCode.Int64)
	}
	return any, nil
}

const containerColumns = `id, name, image, state, config_json, pid, created_at, started_at, finished_at, exit_code`

// GetAny reconstructs the erased view of a container by id.
func (s *sqliteStore) GetAny(ctx context.Context, id string) (container.AnyContainer, bool, error) {
	row, err := scanContainerRow(s.db.QueryRowContext(ctx, `SELECT `+containerColumns+` FROM containers WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return container.AnyContainer{}, false, nil
		}
		return container.AnyContainer{}, false, apperr.Wrap(apperr.CodeDBError, err, "failed reading container")
	}
	any, err := row.toAnyContainer()
	if err != nil {
		return container.AnyContainer{}, false, err
	}
	return any, true, nil
}

// ListAny reconstructs the erased view of every persisted container.
func (s *sqliteStore) ListAny(ctx context.Context) ([]container.AnyContainer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+containerColumns+` FROM containers ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, err, "failed listing containers")
	}
	defer rows.Close()

	var result []container.AnyContainer
	for rows.Next() {
		row, err := scanContainerRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDBError, err, "failed scanning container row")
		}
		any, err := row.toAnyContainer()
		if err != nil {
			return nil, err
		}
		result = append(result, any)
	}
	return result, rows.Err()
}

// RemoveContainer deletes a container row. Removing an already-absent
// container fails with CONTAINER_NOT_FOUND.
func (s *sqliteStore) RemoveContainer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed removing container")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.CodeContainerNotFound, "container %q not found", id)
	}
	return nil
}

// SaveImage inserts or updates an image record. Re-pulling an already-known
// repo:tag onto a different image id strips that tag from whichever other
// image record currently holds it, in the same transaction. Re-pulling the
// same id again merges the incoming repo tags into the existing ones via
// image.MergeRepoTags rather than overwriting them, so a record accumulates
// every tag that has ever resolved to it.
func (s *sqliteStore) SaveImage(ctx context.Context, rec image.Record) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, tag := range rec.RepoTags {
			rows, err := tx.QueryContext(ctx, `SELECT id, repo_tags_json FROM images WHERE id != ?`, rec.ID)
			if err != nil {
				return apperr.Wrap(apperr.CodeDBError, err, "failed scanning images for re-tag conflicts")
			}
			type conflict struct {
				id   string
				tags []string
			}
			var conflicts []conflict
			for rows.Next() {
				var id, tagsJSON string
				if err := rows.Scan(&id, &tagsJSON); err != nil {
					rows.Close()
					return apperr.Wrap(apperr.CodeDBError, err, "failed scanning image row")
				}
				var tags []string
				if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
					rows.Close()
					return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding repo tags")
				}
				conflicts = append(conflicts, conflict{id: id, tags: tags})
			}
			rows.Close()

			for _, c := range conflicts {
				filtered := c.tags[:0]
				changed := false
				for _, t := range c.tags {
					if t == tag {
						changed = true
						continue
					}
					filtered = append(filtered, t)
				}
				if !changed {
					continue
				}
				encoded, err := json.Marshal(filtered)
				if err != nil {
					return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed encoding repo tags")
				}
				if _, err := tx.ExecContext(ctx, `UPDATE images SET repo_tags_json = ? WHERE id = ?`, string(encoded), c.id); err != nil {
					return apperr.Wrap(apperr.CodeDBError, err, "failed stripping re-tagged image")
				}
			}
		}

		var existingTagsJSON string
		mergedTags := rec.RepoTags
		switch err := tx.QueryRowContext(ctx, `SELECT repo_tags_json FROM images WHERE id = ?`, rec.ID).Scan(&existingTagsJSON); {
		case err == nil:
			var existingTags []string
			if err := json.Unmarshal([]byte(existingTagsJSON), &existingTags); err != nil {
				return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding existing repo tags")
			}
			mergedTags = image.MergeRepoTags(existingTags, rec.RepoTags)
		case errors.Is(err, sql.ErrNoRows):
			// first save for this id, nothing to merge
		default:
			return apperr.Wrap(apperr.CodeDBError, err, "failed reading existing image for merge")
		}

		tagsJSON, err := json.Marshal(mergedTags)
		if err != nil {
			return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed encoding repo tags")
		}
		layersJSON, err := json.Marshal(rec.Layers)
		if err != nil {
			return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed encoding layers")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO images (id, repo_tags_json, parent_id, created, size, layers_json)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET repo_tags_json = excluded.repo_tags_json, size = excluded.size`,
			rec.ID, string(tagsJSON), rec.ParentID, rec.Created, rec.Size, string(layersJSON),
		)
		if err != nil {
			return apperr.Wrap(apperr.CodeDBError, err, "failed saving image")
		}
		return nil
	})
}

func scanImageRow(scanner interface {
	Scan(dest ...interface{}) error
}) (image.Record, error) {
	var rec image.Record
	var tagsJSON, layersJSON string
	var parentID sql.NullString
	if err := scanner.Scan(&rec.ID, &tagsJSON, &parentID, &rec.Created, &rec.Size, &layersJSON); err != nil {
		return image.Record{}, err
	}
	rec.ParentID = parentID.String
	if err := json.Unmarshal([]byte(tagsJSON), &rec.RepoTags); err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding repo tags")
	}
	if err := json.Unmarshal([]byte(layersJSON), &rec.Layers); err != nil {
		return image.Record{}, apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding layers")
	}
	return rec, nil
}

const imageColumns = `id, repo_tags_json, parent_id, created, size, layers_json`

// GetImage looks an image up by id.
func (s *sqliteStore) GetImage(ctx context.Context, id string) (image.Record, bool, error) {
	rec, err := scanImageRow(s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return image.Record{}, false, nil
		}
		return image.Record{}, false, apperr.Wrap(apperr.CodeDBError, err, "failed reading image")
	}
	return rec, true, nil
}

// GetImageByTag looks an image up by one of its repo:tag entries.
func (s *sqliteStore) GetImageByTag(ctx context.Context, tag string) (image.Record, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images`)
	if err != nil {
		return image.Record{}, false, apperr.Wrap(apperr.CodeDBError, err, "failed listing images")
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanImageRow(rows)
		if err != nil {
			return image.Record{}, false, apperr.Wrap(apperr.CodeDBError, err, "failed scanning image row")
		}
		for _, t := range rec.RepoTags {
			if t == tag {
				return rec, true, nil
			}
		}
	}
	return image.Record{}, false, rows.Err()
}

// ListImages returns every persisted image.
func (s *sqliteStore) ListImages(ctx context.Context) ([]image.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM images ORDER BY created ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, err, "failed listing images")
	}
	defer rows.Close()
	var result []image.Record
	for rows.Next() {
		rec, err := scanImageRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDBError, err, "failed scanning image row")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// RemoveImage deletes an image record by id.
func (s *sqliteStore) RemoveImage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed removing image")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.CodeImageNotFound, "image %q not found", id)
	}
	return nil
}

// SaveNetwork inserts or updates a network record.
func (s *sqliteStore) SaveNetwork(ctx context.Context, rec network.Record) error {
	labelsJSON, err := json.Marshal(rec.Labels)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBSerializationError, err, "failed encoding network labels")
	}
	builtin := 0
	if rec.Builtin {
		builtin = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO networks (id, name, driver, labels_json, builtin) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, driver = excluded.driver, labels_json = excluded.labels_json`,
		rec.ID, rec.Name, rec.Driver, string(labelsJSON), builtin,
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed saving network")
	}
	return nil
}

func scanNetworkRow(scanner interface {
	Scan(dest ...interface{}) error
}) (network.Record, error) {
	var rec network.Record
	var labelsJSON string
	var builtin int
	if err := scanner.Scan(&rec.ID, &rec.Name, &rec.Driver, &labelsJSON, &builtin); err != nil {
		return network.Record{}, err
	}
	rec.Builtin = builtin != 0
	if err := json.Unmarshal([]byte(labelsJSON), &rec.Labels); err != nil {
		return network.Record{}, apperr.Wrap(apperr.CodeDBSerializationError, err, "failed decoding network labels")
	}
	return rec, nil
}

const networkColumns = `id, name, driver, labels_json, builtin`

// GetNetwork looks a network up by id.
func (s *sqliteStore) GetNetwork(ctx context.Context, id string) (network.Record, bool, error) {
	rec, err := scanNetworkRow(s.db.QueryRowContext(ctx, `SELECT `+networkColumns+` FROM networks WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return network.Record{}, false, nil
		}
		return network.Record{}, false, apperr.Wrap(apperr.CodeDBError, err, "failed reading network")
	}
	return rec, true, nil
}

// ListNetworks returns every persisted network.
func (s *sqliteStore) ListNetworks(ctx context.Context) ([]network.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+networkColumns+` FROM networks ORDER BY name ASC`)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, err, "failed listing networks")
	}
	defer rows.Close()
	var result []network.Record
	for rows.Next() {
		rec, err := scanNetworkRow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDBError, err, "failed scanning network row")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// RemoveNetwork deletes a network record by id. Built-in networks are
// rejected by the caller (internal/engine) before this is reached.
func (s *sqliteStore) RemoveNetwork(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id)
	if err != nil {
		return apperr.Wrap(apperr.CodeDBError, err, "failed removing network")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.Newf(apperr.CodeNetworkNotFound, "network %q not found", id)
	}
	return nil
}
