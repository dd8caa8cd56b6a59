package docstore

// WriteKind は書き込み操作の種類。
type WriteKind int

const (
	// WriteSet はドキュメントの作成・上書き・マージ。
	WriteSet WriteKind = iota
	// WriteDelete はドキュメントの削除。
	WriteDelete
)

// Write は一括書き込みに含まれる1件の操作。
type Write struct {
	// Kind は操作の種類。
	Kind WriteKind
	// Ref は操作対象のドキュメント。
	Ref DocRef
	// Data は書き込むフィールド。Deleteでは使用しない。
	Data map[string]any
	// Merge がtrueの場合、既存フィールドを保持する。
	Merge bool
}

// WriteBatch は Store.Commit でアトミックに適用される操作の集まり。
type WriteBatch struct {
	writes []Write
}

// NewBatch は空の一括書き込みを生成する。
func NewBatch() *WriteBatch {
	return &WriteBatch{}
}

// Set は書き込み操作を追加する。
func (b *WriteBatch) Set(ref DocRef, data map[string]any, opts ...SetOption) *WriteBatch {
	w := Write{Kind: WriteSet, Ref: ref, Data: data}
	for _, opt := range opts {
		opt(&w)
	}
	b.writes = append(b.writes, w)
	return b
}

// Delete は削除操作を追加する。
func (b *WriteBatch) Delete(ref DocRef) *WriteBatch {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Ref: ref})
	return b
}

// Len は操作数を返す。
func (b *WriteBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.writes)
}

// Writes は追加された操作のコピーを返す。
func (b *WriteBatch) Writes() []Write {
	if b == nil {
		return nil
	}
	return append([]Write(nil), b.writes...)
}
