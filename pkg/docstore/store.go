package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxBatchOps は1回の一括書き込みに含められる操作数の上限。
const MaxBatchOps = 500

var (
	// ErrNotFound は指定されたドキュメントが存在しないことを表す。
	ErrNotFound = errors.New("ドキュメントが見つかりません")
	// ErrBatchTooLarge は一括書き込みの操作数が MaxBatchOps を超えたことを表す。
	ErrBatchTooLarge = errors.New("一括書き込みの操作数が上限を超えています")
	// ErrInvalidField はクエリのフィールド名または演算子が不正であることを表す。
	ErrInvalidField = errors.New("フィールド指定が不正です")
	// ErrInvalidPath はドキュメントパスが不正であることを表す。
	ErrInvalidPath = errors.New("ドキュメントパスが不正です")
)

// Store はエンジンが利用するドキュメントストアの操作を表す。
type Store interface {
	// Get はドキュメントを1件読み取る。存在しない場合は ErrNotFound を返す。
	Get(ctx context.Context, ref DocRef) (Snapshot, error)
	// Query はクエリに一致するドキュメントをドキュメントID順に返す。
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// Set はドキュメントを書き込む。Merge指定時は既存フィールドを保持する。
	Set(ctx context.Context, ref DocRef, data map[string]any, opts ...SetOption) error
	// Delete はドキュメントを削除する。存在しない場合は何もしない。
	Delete(ctx context.Context, ref DocRef) error
	// Commit は一括書き込みをアトミックに適用する。
	Commit(ctx context.Context, b *WriteBatch) error
}

// CollectionRef はコレクションへの参照。
type CollectionRef struct {
	// Path はコレクションのパス（例: "chats/c1/messages"）。
	Path string
}

// Collection はトップレベルまたはネストしたコレクションへの参照を返す。
func Collection(path string) CollectionRef {
	return CollectionRef{Path: strings.Trim(path, "/")}
}

// Doc はコレクション内のドキュメントへの参照を返す。
func (c CollectionRef) Doc(id string) DocRef {
	return DocRef{Parent: c, ID: id}
}

// Where はフィルタを1つ持つクエリを返す。
func (c CollectionRef) Where(field string, op Op, value any) Query {
	return Query{Parent: c}.Where(field, op, value)
}

// OrderByID はコレクション全体をドキュメントID順に走査するクエリを返す。
func (c CollectionRef) OrderByID() Query {
	return Query{Parent: c}
}

// DocRef はドキュメントへの参照。
type DocRef struct {
	// Parent はドキュメントが属するコレクション。
	Parent CollectionRef
	// ID はコレクション内でのドキュメント識別子。
	ID string
}

// Path はドキュメントのフルパスを返す。
func (d DocRef) Path() string {
	return d.Parent.Path + "/" + d.ID
}

// Collection はドキュメント配下のサブコレクションへの参照を返す。
func (d DocRef) Collection(name string) CollectionRef {
	return CollectionRef{Path: d.Path() + "/" + name}
}

// ParseDocPath は "chats/c1" のようなパスをDocRefに変換する。
// セグメント数が偶数でない場合や空セグメントを含む場合はエラーを返す。
func ParseDocPath(path string) (DocRef, error) {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) < 2 || len(segs)%2 != 0 {
		return DocRef{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return DocRef{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	last := len(segs) - 1
	return DocRef{
		Parent: CollectionRef{Path: strings.Join(segs[:last], "/")},
		ID:     segs[last],
	}, nil
}

// Snapshot はある時点のドキュメントの内容。
type Snapshot struct {
	// Ref はドキュメントへの参照。
	Ref DocRef
	// Data はドキュメント本体のJSON。
	Data json.RawMessage
	// CreateTime はドキュメントの作成日時。
	CreateTime time.Time
	// UpdateTime はドキュメントの最終更新日時。
	UpdateTime time.Time
}

// DataTo はドキュメント本体を指定された値にデコードする。
func (s Snapshot) DataTo(v any) error {
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("ドキュメント %s のデコードに失敗: %w", s.Ref.Path(), err)
	}
	return nil
}

// Op はクエリフィルタの比較演算子。
type Op string

const (
	// OpEqual は等価比較。
	OpEqual Op = "=="
	// OpNotEqual は非等価比較。
	OpNotEqual Op = "!="
	// OpLess は未満。
	OpLess Op = "<"
	// OpLessEqual は以下。
	OpLessEqual Op = "<="
	// OpGreater は超過。
	OpGreater Op = ">"
	// OpGreaterEqual は以上。
	OpGreaterEqual Op = ">="
)

// Filter はクエリのフィルタ条件。
type Filter struct {
	// Field はドット区切りのフィールドパス。
	Field string
	// Op は比較演算子。
	Op Op
	// Value は比較対象の値。time.Time は時刻として比較される。
	Value any
}

// Query はコレクションに対するクエリ。結果は常にドキュメントID順に並ぶ。
type Query struct {
	// Parent は検索対象のコレクション。
	Parent CollectionRef
	// Filters はAND結合されるフィルタ条件。
	Filters []Filter
	// After が空でない場合、このIDより後のドキュメントのみを返す。
	After string
	// Max が正の場合、返す件数の上限。
	Max int
}

// Where はフィルタを追加したクエリを返す。
func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

// StartAfter は指定IDの直後から走査を再開するクエリを返す。
func (q Query) StartAfter(id string) Query {
	q.After = id
	return q
}

// Limit は件数上限を設定したクエリを返す。
func (q Query) Limit(n int) Query {
	q.Max = n
	return q
}

// SetOption は書き込みのオプション。
type SetOption func(*Write)

// Merge は既存ドキュメントのフィールドを保持したまま書き込むオプション。
func Merge() SetOption {
	return func(w *Write) { w.Merge = true }
}

// serverTimestamp はコミット時刻に置き換えられる値の型。
type serverTimestamp struct{}

// ServerTimestamp を書き込みデータの値に指定すると、コミット時のストア時刻に置き換えられる。
var ServerTimestamp any = serverTimestamp{}

// Change はコミットされた1件のドキュメント変更。
type Change struct {
	// Ref は変更されたドキュメント。
	Ref DocRef
	// Before は変更前の内容。作成時はnil。
	Before json.RawMessage
	// After は変更後の内容。削除時はnil。
	After json.RawMessage
	// CommitTime は変更がコミットされた日時。
	CommitTime time.Time
}

// Created は変更がドキュメントの新規作成であるかを返す。
func (c Change) Created() bool {
	return c.Before == nil && c.After != nil
}

// Observer はコミットされた変更の通知を受け取る。
// Observe はコミット後に同期的に呼ばれるため、長い処理は内部で非同期化すること。
type Observer interface {
	Observe(ctx context.Context, ch Change)
}
