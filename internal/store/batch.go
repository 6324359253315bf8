package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type opKind int

const (
	opPut opKind = iota + 1
	opRename
	opDelete
)

type batchOp struct {
	kind   opKind
	key    string
	newKey string
	body   []byte
}

// Batch collects document writes to be committed atomically.
//
// Applying an event touches the ledger, the dirty set, the hook indexes and
// the applied-event record; a reader must never observe some of those writes
// without the others. Commit executes every queued operation inside a single
// SQLite transaction, so either all documents change or none do.
type Batch struct {
	ops []batchOp
	err error
}

// Put queues a raw document write.
func (b *Batch) Put(key string, body []byte) {
	b.ops = append(b.ops, batchOp{kind: opPut, key: key, body: body})
}

// PutJSON queues a document write with the JSON encoding of v.
// A marshal failure is carried to Commit rather than returned here, keeping
// call sites linear.
func (b *Batch) PutJSON(key string, v any) {
	body, err := json.Marshal(v)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("batch put %q: %w", key, err)
		return
	}
	b.Put(key, body)
}

// Rename queues a move of the document at oldKey to newKey.
// Used to archive applied-event records on rollback; the body is preserved.
// Commit fails (and rolls back) if oldKey does not exist.
func (b *Batch) Rename(oldKey, newKey string) {
	b.ops = append(b.ops, batchOp{kind: opRename, key: oldKey, newKey: newKey})
}

// Delete queues a document removal.
func (b *Batch) Delete(key string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, key: key})
}

// Len returns the number of queued operations.
func (b *Batch) Len() int { return len(b.ops) }

// Commit applies every queued operation in one transaction.
func (s *Store) Commit(ctx context.Context, b *Batch) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit batch: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	now := nowText()
	for _, op := range b.ops {
		switch op.kind {
		case opPut:
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (key, body, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					body = excluded.body,
					updated_at = excluded.updated_at
			`, op.key, op.body, now)
			if err != nil {
				return fmt.Errorf("commit batch: put %q: %w", op.key, err)
			}

		case opRename:
			var body []byte
			err = tx.QueryRowContext(ctx,
				`SELECT body FROM documents WHERE key = ?`, op.key,
			).Scan(&body)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("commit batch: rename %q: %w", op.key, ErrNotFound)
			}
			if err != nil {
				return fmt.Errorf("commit batch: rename %q: %w", op.key, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (key, body, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET
					body = excluded.body,
					updated_at = excluded.updated_at
			`, op.newKey, body, now)
			if err != nil {
				return fmt.Errorf("commit batch: rename %q -> %q: %w", op.key, op.newKey, err)
			}
			if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, op.key); err != nil {
				return fmt.Errorf("commit batch: rename %q: %w", op.key, err)
			}

		case opDelete:
			if _, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE key = ?`, op.key); err != nil {
				return fmt.Errorf("commit batch: delete %q: %w", op.key, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
