package notification

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/nao1215/chatsync/internal/model"
	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/push"
)

// testLabels はテスト用の既定文言。
var testLabels = Labels{
	DefaultSenderName: "Bilinmeyen Kullanıcı",
	DefaultGroupTitle: "Yeni Grup Mesajı",
}

// errLookup はテスト用の読み取りエラー。
var errLookup = errors.New("lookup failed")

// openTestStore はインメモリのドキュメントストアを生成する。
func openTestStore(t *testing.T) *docstore.SQLiteStore {
	t.Helper()
	store, err := docstore.Open(t.Context(), ":memory:")
	if err != nil {
		t.Fatalf("ドキュメントストアの作成に失敗: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// seedUser はユーザードキュメントを書き込む。
func seedUser(t *testing.T, store docstore.Store, id string, data map[string]any) {
	t.Helper()
	if err := store.Set(t.Context(), model.UserRef(id), data); err != nil {
		t.Fatalf("ユーザー %s の書き込みに失敗: %v", id, err)
	}
}

// seedChat はチャットドキュメントを書き込む。
func seedChat(t *testing.T, store docstore.Store, id string, data map[string]any) {
	t.Helper()
	if err := store.Set(t.Context(), model.ChatRef(id), data); err != nil {
		t.Fatalf("チャット %s の書き込みに失敗: %v", id, err)
	}
}

// faultyStore は指定したパスの読み取りでエラーを返すストア。
type faultyStore struct {
	docstore.Store
	failGet map[string]bool
}

// Get は failGet に含まれるパスでエラーを返す。
func (s *faultyStore) Get(ctx context.Context, ref docstore.DocRef) (docstore.Snapshot, error) {
	if s.failGet[ref.Path()] {
		return docstore.Snapshot{}, errLookup
	}
	return s.Store.Get(ctx, ref)
}

// recordingSender は送信されたメッセージを記録するプッシュ送信の偽物。
type recordingSender struct {
	mu         sync.Mutex
	sent       []push.Message
	failTokens map[string]error
}

// Send はメッセージを記録する。failTokens に含まれるトークンではエラーを返す。
func (s *recordingSender) Send(_ context.Context, msg push.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failTokens[msg.Token]; err != nil {
		return "", err
	}
	s.sent = append(s.sent, msg)
	return "push-" + msg.Token, nil
}

// tokens は送信先トークンを昇順で返す。
func (s *recordingSender) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Token)
	}
	slices.Sort(out)
	return out
}

// messages は送信されたメッセージのコピーを返す。
func (s *recordingSender) messages() []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]push.Message(nil), s.sent...)
}
