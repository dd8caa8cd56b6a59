package event

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind はイベントの種類を表す。
type Kind string

const (
	// KindDocumentCreated はドキュメントが新規作成されたことを表す。
	KindDocumentCreated Kind = "document.created"
	// KindDocumentWritten はドキュメントが作成・更新・削除されたことを表す。
	KindDocumentWritten Kind = "document.written"
	// KindTimerFired はスケジュールされたタイマーが発火したことを表す。
	KindTimerFired Kind = "timer.fired"
	// KindCallable は直接呼び出しを表す。
	KindCallable Kind = "callable"
)

var (
	// ErrInvalidArgument は直接呼び出しの引数が不足・不正であることを表す。
	ErrInvalidArgument = errors.New("invalid-argument")
	// ErrUnauthenticated は呼び出し元の認証情報がないことを表す。
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Envelope はHTTP経由で配送されるイベントの外枠。
// 同じイベントが複数回届く可能性があるため、ハンドラは冪等でなければならない。
type Envelope struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// Kind はイベントの種類。
	Kind Kind `json:"kind"`
	// Source はイベントの発生源（ドキュメントパス、スケジュール名、呼び出し名）。
	Source string `json:"source"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// DocumentCreated はドキュメント作成イベント。
type DocumentCreated struct {
	// Path は作成されたドキュメントのパス。
	Path string `json:"path"`
	// Params はパスパターンのワイルドカードに対応する値。
	Params map[string]string `json:"params,omitempty"`
	// Value は作成されたドキュメントの内容。
	Value json.RawMessage `json:"value"`
}

// DocumentWritten はドキュメント書き込みイベント。
type DocumentWritten struct {
	// Path は書き込まれたドキュメントのパス。
	Path string `json:"path"`
	// Params はパスパターンのワイルドカードに対応する値。
	Params map[string]string `json:"params,omitempty"`
	// Before は書き込み前の内容。作成時はnull。
	Before json.RawMessage `json:"before,omitempty"`
	// After は書き込み後の内容。削除時はnull。
	After json.RawMessage `json:"after,omitempty"`
}

// TimerFired はタイマー発火イベント。
type TimerFired struct {
	// Schedule は発火したスケジュールのcron式。
	Schedule string `json:"schedule"`
	// TimeZone はスケジュールのタイムゾーン。
	TimeZone string `json:"time_zone"`
	// ScheduledAt は予定されていた発火時刻。
	ScheduledAt time.Time `json:"scheduled_at"`
}

// Auth は直接呼び出しの呼び出し元。
type Auth struct {
	// UID は呼び出し元ユーザーの識別子。
	UID string `json:"uid"`
	// Email は呼び出し元ユーザーのメールアドレス。
	Email string `json:"email,omitempty"`
}

// CallableRequest は直接呼び出しイベント。
type CallableRequest struct {
	// Name は呼び出された操作の名前。
	Name string `json:"name"`
	// Auth は呼び出し元。未認証の場合はnil。
	Auth *Auth `json:"auth,omitempty"`
	// Data は呼び出しの引数（JSON形式）。
	Data json.RawMessage `json:"data"`
}

// CallerID は呼び出し元のユーザーIDを返す。未認証の場合は空文字列。
func (r CallableRequest) CallerID() string {
	if r.Auth == nil {
		return ""
	}
	return r.Auth.UID
}
