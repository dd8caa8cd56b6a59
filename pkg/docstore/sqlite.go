package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nao1215/chatsync/pkg/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// fieldPattern はクエリで使用できるフィールドパスの形式。
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// sqlOps はクエリ演算子とSQL演算子の対応。
var sqlOps = map[Op]string{
	OpEqual:        "=",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

// SQLiteStore はSQLiteをバックエンドとする Store の実装。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
	// now はサーバータイムスタンプに使用する時計。
	now func() time.Time
	// mu はobserversへの並行アクセスを保護する。
	mu sync.RWMutex
	// observers はコミット通知の購読者。
	observers []Observer
}

var _ Store = (*SQLiteStore)(nil)

// Option は SQLiteStore の生成オプション。
type Option func(*SQLiteStore)

// WithClock はサーバータイムスタンプに使用する時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// Open はSQLiteデータベースを開き、スキーマを適用したストアを返す。
// path に ":memory:" を指定するとインメモリDBを使用する。
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	// SQLiteの書き込みは単一接続で直列化する。:memory: は接続ごとに別DBになるため必須。
	sqlDB.SetMaxOpenConns(1)

	if _, err := migration.Run(ctx, sqlDB, migrationsFS, "migrations"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	s := &SQLiteStore{db: sqlDB, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Subscribe はコミット通知の購読者を登録する。
func (s *SQLiteStore) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Get はドキュメントを1件読み取る。
func (s *SQLiteStore) Get(ctx context.Context, ref DocRef) (Snapshot, error) {
	var (
		data               string
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data, create_time, update_time FROM documents WHERE collection = ? AND id = ?",
		ref.Parent.Path, ref.ID,
	).Scan(&data, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, ref.Path())
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("ドキュメント %s の読み取りに失敗: %w", ref.Path(), err)
	}
	return newSnapshot(ref, data, createdAt, updated), nil
}

// Query はクエリに一致するドキュメントをドキュメントID順に返す。
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	stmt, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("コレクション %s のクエリに失敗: %w", q.Parent.Path, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var id, data, createdAt, updated string
		if err := rows.Scan(&id, &data, &createdAt, &updated); err != nil {
			return nil, fmt.Errorf("クエリ結果の読み取りに失敗: %w", err)
		}
		out = append(out, newSnapshot(q.Parent.Doc(id), data, createdAt, updated))
	}
	return out, rows.Err()
}

// buildQuery はクエリをSQL文と引数に変換する。
func buildQuery(q Query) (string, []any, error) {
	var sb strings.Builder
	args := []any{q.Parent.Path}
	sb.WriteString("SELECT id, data, create_time, update_time FROM documents WHERE collection = ?")

	for _, f := range q.Filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("%w: 演算子 %q", ErrInvalidField, f.Op)
		}
		if !fieldPattern.MatchString(f.Field) {
			return "", nil, fmt.Errorf("%w: フィールド %q", ErrInvalidField, f.Field)
		}
		expr := fmt.Sprintf("json_extract(data, '$.%s')", f.Field)
		switch v := f.Value.(type) {
		case time.Time:
			fmt.Fprintf(&sb, " AND julianday(%s) %s julianday(?)", expr, op)
			args = append(args, v.UTC().Format(time.RFC3339Nano))
		case bool:
			fmt.Fprintf(&sb, " AND %s %s ?", expr, op)
			if v {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		default:
			fmt.Fprintf(&sb, " AND %s %s ?", expr, op)
			args = append(args, v)
		}
	}
	if q.After != "" {
		sb.WriteString(" AND id > ?")
		args = append(args, q.After)
	}
	sb.WriteString(" ORDER BY id")
	if q.Max > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Max)
	}
	return sb.String(), args, nil
}

// Set はドキュメントを1件書き込む。
func (s *SQLiteStore) Set(ctx context.Context, ref DocRef, data map[string]any, opts ...SetOption) error {
	return s.Commit(ctx, NewBatch().Set(ref, data, opts...))
}

// Delete はドキュメントを1件削除する。
func (s *SQLiteStore) Delete(ctx context.Context, ref DocRef) error {
	return s.Commit(ctx, NewBatch().Delete(ref))
}

// Commit は一括書き込みを1つのトランザクションで適用し、変更を購読者に通知する。
// 存在しないドキュメントの削除は変更として扱わない。
func (s *SQLiteStore) Commit(ctx context.Context, b *WriteBatch) error {
	if b.Len() == 0 {
		return nil
	}
	if b.Len() > MaxBatchOps {
		return fmt.Errorf("%w: %d件", ErrBatchTooLarge, b.Len())
	}

	now := s.now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	changes := make([]Change, 0, b.Len())
	for _, w := range b.writes {
		before, err := loadRaw(ctx, tx, w.Ref)
		if err != nil {
			return err
		}

		switch w.Kind {
		case WriteDelete:
			if before == nil {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM documents WHERE collection = ? AND id = ?",
				w.Ref.Parent.Path, w.Ref.ID,
			); err != nil {
				return fmt.Errorf("ドキュメント %s の削除に失敗: %w", w.Ref.Path(), err)
			}
			changes = append(changes, Change{Ref: w.Ref, Before: before, CommitTime: now})

		case WriteSet:
			fields := resolveSentinels(w.Data, now)
			if w.Merge && before != nil {
				var existing map[string]any
				if err := json.Unmarshal(before, &existing); err != nil {
					return fmt.Errorf("ドキュメント %s のデコードに失敗: %w", w.Ref.Path(), err)
				}
				fields = mergeFields(existing, fields)
			}
			after, err := json.Marshal(fields)
			if err != nil {
				return fmt.Errorf("ドキュメント %s のシリアライズに失敗: %w", w.Ref.Path(), err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, data, create_time, update_time)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (collection, id) DO UPDATE SET
					data = excluded.data,
					update_time = excluded.update_time`,
				w.Ref.Parent.Path, w.Ref.ID, string(after), stamp, stamp,
			); err != nil {
				return fmt.Errorf("ドキュメント %s の書き込みに失敗: %w", w.Ref.Path(), err)
			}
			changes = append(changes, Change{Ref: w.Ref, Before: before, After: after, CommitTime: now})
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	s.publish(ctx, changes)
	return nil
}

// publish はコミット済みの変更を購読者に通知する。
func (s *SQLiteStore) publish(ctx context.Context, changes []Change) {
	s.mu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.RUnlock()

	if len(observers) == 0 || len(changes) == 0 {
		return
	}
	log.Printf("[DocStore] %d件の変更を通知します", len(changes))
	for _, ch := range changes {
		for _, o := range observers {
			o.Observe(ctx, ch)
		}
	}
}

// loadRaw はトランザクション内でドキュメント本体を読み取る。存在しない場合はnilを返す。
func loadRaw(ctx context.Context, tx *sql.Tx, ref DocRef) (json.RawMessage, error) {
	var data string
	err := tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		ref.Parent.Path, ref.ID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメント %s の読み取りに失敗: %w", ref.Path(), err)
	}
	return json.RawMessage(data), nil
}

// resolveSentinels は ServerTimestamp をコミット時刻に置き換えたコピーを返す。
func resolveSentinels(data map[string]any, now time.Time) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch tv := v.(type) {
		case serverTimestamp:
			out[k] = now
		case map[string]any:
			out[k] = resolveSentinels(tv, now)
		default:
			out[k] = v
		}
	}
	return out
}

// mergeFields はsrcのフィールドをdstに再帰的に重ねる。ネストしたマップ同士は統合される。
func mergeFields(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				dst[k] = mergeFields(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// newSnapshot はDB行からSnapshotを組み立てる。
func newSnapshot(ref DocRef, data, createdAt, updated string) Snapshot {
	ct, _ := time.Parse(time.RFC3339Nano, createdAt)
	ut, _ := time.Parse(time.RFC3339Nano, updated)
	return Snapshot{
		Ref:        ref,
		Data:       json.RawMessage(data),
		CreateTime: ct,
		UpdateTime: ut,
	}
}
