package trigger

import (
	"context"

	"github.com/nao1215/chatsync/pkg/event"
)

// EventHandler はイベント種別Eのハンドラ。
type EventHandler[E any] interface {
	Handle(ctx context.Context, ev E) error
}

// HandlerFunc は関数を EventHandler として扱うためのアダプタ。
type HandlerFunc[E any] func(ctx context.Context, ev E) error

// Handle はf(ctx, ev)を呼び出す。
func (f HandlerFunc[E]) Handle(ctx context.Context, ev E) error {
	return f(ctx, ev)
}

// CallableHandler は直接呼び出しのハンドラ。戻り値は呼び出し元にJSONで返される。
type CallableHandler interface {
	Call(ctx context.Context, req event.CallableRequest) (any, error)
}

// CallableFunc は関数を CallableHandler として扱うためのアダプタ。
type CallableFunc func(ctx context.Context, req event.CallableRequest) (any, error)

// Call はf(ctx, req)を呼び出す。
func (f CallableFunc) Call(ctx context.Context, req event.CallableRequest) (any, error) {
	return f(ctx, req)
}
