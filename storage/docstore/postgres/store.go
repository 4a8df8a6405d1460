// Package pgstore backs the document store with PostgreSQL. Each root
// collection ("students", "transactions", ...) is one jsonb row; multi-path
// updates lock the touched rows in one transaction, which gives the
// all-or-nothing and update-if-unchanged semantics the ledger needs.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"sort"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/storage/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS docs (
    root       text PRIMARY KEY,
    doc        jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
);`

type store struct {
	db *sqlx.DB
}

var _ docstore.Store = (*store)(nil) // interface compliance check

// Open connects to the configured database. It does not run migrations;
// see Migrate (wired to the admin CLI).
func Open(conf *core.Config) (docstore.Store, *sqlx.DB, error) {
	user := url.UserPassword(conf.Database.User, conf.Database.Password)

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.Database.Address(),
		Path:     conf.Database.Name,
		RawQuery: q.Encode(),
	}
	db, err := sqlx.Connect(conf.Database.Engine, u.String())
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to DB")
	}
	return &store{db: db}, db, nil
}

// New wraps an existing connection; used by tests and the admin CLI.
func New(db *sqlx.DB) docstore.Store {
	return &store{db: db}
}

// Migrate creates the docs table. Idempotent.
func Migrate(db *sqlx.DB) error {
	_, err := db.Exec(schema)
	return errors.Wrap(err, "creating docs table")
}

func (s *store) Get(ctx context.Context, path string, dest interface{}) error {
	segs := docstore.SplitPath(path)
	if len(segs) == 0 {
		return docstore.ErrEmptyPath
	}

	var raw []byte
	err := s.db.QueryRowxContext(ctx, `SELECT doc FROM docs WHERE root = $1`, segs[0]).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.ErrPathNotFound
	}
	if err != nil {
		return errors.Wrap(err, "reading doc")
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "decoding doc")
	}
	node, ok := docstore.GetAtPath(doc, segs[1:])
	if !ok {
		return docstore.ErrPathNotFound
	}
	return docstore.Decode(node, dest)
}

func (s *store) Set(ctx context.Context, path string, value interface{}) error {
	return s.Update(ctx, map[string]interface{}{path: value})
}

func (s *store) Update(ctx context.Context, updates map[string]interface{}) error {
	_, err := s.update(ctx, nil, updates)
	return err
}

func (s *store) UpdateIf(ctx context.Context, conds map[string]interface{}, updates map[string]interface{}) (bool, error) {
	if len(conds) == 0 {
		return false, docstore.ErrEmptyPath
	}
	return s.update(ctx, conds, updates)
}

// update runs the whole read-modify-write cycle in one DB transaction.
// Every touched root row is locked (FOR UPDATE, sorted to avoid deadlocks)
// before the conditions are evaluated, so a concurrent writer cannot slip in
// between the checks and the write.
func (s *store) update(ctx context.Context, conds, updates map[string]interface{}) (applied bool, err error) {
	type treeUpdate struct {
		segs  []string
		value interface{}
	}
	parsed := make([]treeUpdate, 0, len(updates))
	rootSet := make(map[string]bool)
	for path, value := range updates {
		segs := docstore.SplitPath(path)
		if len(segs) == 0 {
			return false, docstore.ErrEmptyPath
		}
		if value != nil {
			if value, err = docstore.Normalize(value); err != nil {
				return false, err
			}
		}
		parsed = append(parsed, treeUpdate{segs: segs, value: value})
		rootSet[segs[0]] = true
	}

	parsedConds := make([]treeUpdate, 0, len(conds))
	for path, expect := range conds {
		segs := docstore.SplitPath(path)
		if len(segs) == 0 {
			return false, docstore.ErrEmptyPath
		}
		if expect != nil {
			if expect, err = docstore.Normalize(expect); err != nil {
				return false, err
			}
		}
		parsedConds = append(parsedConds, treeUpdate{segs: segs, value: expect})
		rootSet[segs[0]] = true
	}

	roots := make([]string, 0, len(rootSet))
	for root := range rootSet {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "beginning tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// lock & load the touched roots
	docs := make(map[string]map[string]interface{}, len(roots))
	for _, root := range roots {
		var raw []byte
		rErr := tx.QueryRowxContext(ctx, `SELECT doc FROM docs WHERE root = $1 FOR UPDATE`, root).Scan(&raw)
		switch rErr {
		case nil:
			var doc map[string]interface{}
			if err = json.Unmarshal(raw, &doc); err != nil {
				return false, errors.Wrap(err, "decoding doc")
			}
			docs[root] = doc
		case sql.ErrNoRows:
			docs[root] = make(map[string]interface{})
		default:
			return false, errors.Wrap(rErr, "locking doc")
		}
	}

	// evaluate the conditions under the lock
	for _, cond := range parsedConds {
		current, _ := docstore.GetAtPath(docs[cond.segs[0]], cond.segs[1:])
		eq, cErr := docstore.JSONEqual(current, cond.value)
		if cErr != nil {
			err = cErr
			return false, err
		}
		if !eq {
			return false, errors.Wrap(tx.Commit(), "committing tx")
		}
	}

	// apply the tree mutations in memory, then write back whole roots
	for _, u := range parsed {
		root := u.segs[0]
		if len(u.segs) == 1 {
			// replacing a whole root collection
			if u.value == nil {
				docs[root] = make(map[string]interface{})
				continue
			}
			doc, ok := u.value.(map[string]interface{})
			if !ok {
				err = errors.Errorf("root path %q must hold an object", root)
				return false, err
			}
			docs[root] = doc
			continue
		}
		if err = docstore.SetAtPath(docs[root], u.segs[1:], u.value); err != nil {
			return false, err
		}
	}
	for _, root := range roots {
		doc := docs[root]
		if len(doc) == 0 {
			if _, err = tx.ExecContext(ctx, `DELETE FROM docs WHERE root = $1`, root); err != nil {
				return false, errors.Wrap(err, "deleting doc")
			}
			continue
		}
		raw, mErr := json.Marshal(doc)
		if mErr != nil {
			err = errors.Wrap(mErr, "encoding doc")
			return false, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO docs (root, doc, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (root) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
			root, raw)
		if err != nil {
			return false, errors.Wrap(err, "writing doc")
		}
	}

	if err = errors.Wrap(tx.Commit(), "committing tx"); err != nil {
		return false, err
	}
	return true, nil
}
