package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/chatsync/pkg/docstore"
	"github.com/nao1215/chatsync/pkg/event"
	"github.com/nao1215/chatsync/pkg/metrics"
	"github.com/nao1215/chatsync/pkg/middleware"
)

// ServerConfig はトリガーサーバーの設定。
type ServerConfig struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret は呼び出し元トークンの検証に使用するシークレット。
	JWTSecret string
	// CORSOrigins は直接呼び出しエンドポイントへのアクセスを許可するオリジン。
	CORSOrigins []string
	// Metrics は /metrics で公開するメトリクス。nilの場合は公開しない。
	Metrics *metrics.Metrics
}

// Server はトリガーアダプタのHTTPサーバー。
// 外部から配送されるイベント、手動のスケジュール起動、直接呼び出しを受け付ける。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer はグレースフルシャットダウンのためのHTTPサーバー。
	httpServer *http.Server
	// adapter はイベントの配送先。
	adapter *Adapter
	// cfg はサーバー設定。
	cfg ServerConfig
	// now は手動起動時の予定時刻に使用する時計。
	now func() time.Time
}

// NewServer は新しいトリガーサーバーを生成する。
func NewServer(adapter *Adapter, cfg ServerConfig) *Server {
	router := gin.New()
	s := &Server{
		router:  router,
		adapter: adapter,
		cfg:     cfg,
		now:     time.Now,
	}
	router.Use(middleware.Recovery(s.respondPanic))
	router.Use(gin.Logger())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動する。Shutdown が呼ばれると nil を返す。
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は処理中のリクエストの完了を待ってサーバーを停止する。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler はルーターを http.Handler として返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.cfg.Metrics.Handler()))
	}

	api := s.router.Group("/api/v1")

	triggers := api.Group("/triggers")
	triggers.Use(middleware.JWTAuth(s.cfg.JWTSecret))
	{
		triggers.POST("/documents/created", s.handleDocumentCreated)
		triggers.POST("/documents/written", s.handleDocumentWritten)
		triggers.POST("/schedules/:name", s.handleSchedule)
	}

	callable := api.Group("/callable")
	callable.Use(middleware.CORS(s.cfg.CORSOrigins))
	callable.Use(middleware.OptionalJWTAuth(s.cfg.JWTSecret))
	{
		callable.OPTIONS("/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		callable.POST("/:name", s.handleCallable)
	}
}

// callablePrefix は直接呼び出しエンドポイントのパス。
const callablePrefix = "/api/v1/callable/"

// respondPanic はパニックから回復したリクエストに応答する。
// 直接呼び出しには呼び出し元が解釈できる形式で INTERNAL を返す。
func (s *Server) respondPanic(c *gin.Context, _ any) {
	s.cfg.Metrics.Invocation("http", outcomePanic)
	if strings.HasPrefix(c.Request.URL.Path, callablePrefix) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": callableError{Status: "INTERNAL", Message: "呼び出しの処理に失敗しました"}})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
}

// handleHealth はヘルスチェックエンドポイント。
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "chatsync"})
}

// bindEnvelope はリクエストボディをイベントの外枠として読み取り、種類を検証する。
func bindEnvelope(c *gin.Context, kind event.Kind) (*event.Envelope, bool) {
	var env event.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディが不正です"})
		return nil, false
	}
	if env.Kind != kind {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("イベント種別は %s である必要があります", kind)})
		return nil, false
	}
	return &env, true
}

// validDocPath はイベントのパスがドキュメントを指しているかを返す。
func validDocPath(path string) bool {
	_, err := docstore.ParseDocPath(path)
	return err == nil
}

// handleDocumentCreated は外部から配送されたドキュメント作成イベントを処理する。
// ハンドラの失敗は応答に含めない。配送元の切断でハンドラが中断されないようにキャンセルを切り離す。
func (s *Server) handleDocumentCreated(c *gin.Context) {
	env, ok := bindEnvelope(c, event.KindDocumentCreated)
	if !ok {
		return
	}
	ev, err := event.DecodeData[event.DocumentCreated](env)
	if err != nil || !validDocPath(ev.Path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "イベントデータが不正です"})
		return
	}

	n := s.adapter.DeliverCreated(context.WithoutCancel(c.Request.Context()), *ev)
	c.JSON(http.StatusAccepted, gin.H{"id": env.ID, "handlers": n})
}

// handleDocumentWritten は外部から配送されたドキュメント書き込みイベントを処理する。
// ハンドラの失敗は応答に含めない。配送元の切断でハンドラが中断されないようにキャンセルを切り離す。
func (s *Server) handleDocumentWritten(c *gin.Context) {
	env, ok := bindEnvelope(c, event.KindDocumentWritten)
	if !ok {
		return
	}
	ev, err := event.DecodeData[event.DocumentWritten](env)
	if err != nil || !validDocPath(ev.Path) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "イベントデータが不正です"})
		return
	}

	n := s.adapter.DeliverWritten(context.WithoutCancel(c.Request.Context()), *ev)
	c.JSON(http.StatusAccepted, gin.H{"id": env.ID, "handlers": n})
}

// handleSchedule はスケジュールを手動で起動する。起動ごとに発行するIDを応答とログに含める。
func (s *Server) handleSchedule(c *gin.Context) {
	name := c.Param("name")
	ev := event.TimerFired{Schedule: "manual", TimeZone: time.UTC.String(), ScheduledAt: s.now().UTC()}
	env, err := event.New(event.KindTimerFired, name, ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの起動に失敗しました"})
		return
	}

	log.Printf("[Trigger] スケジュールを手動で起動します: %s (id: %s, 起動者: %s)", name, env.ID, middleware.GetUserID(c))
	if err := s.adapter.Fire(context.WithoutCancel(c.Request.Context()), name, ev); err != nil {
		if errors.Is(err, ErrUnknownSchedule) {
			c.JSON(http.StatusNotFound, gin.H{"error": "スケジュールが見つかりません"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの起動に失敗しました"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": env.ID, "schedule": name})
}

// callableRequest は直接呼び出しのリクエストボディ。
type callableRequest struct {
	// Data は呼び出しの引数。
	Data json.RawMessage `json:"data"`
}

// callableError は直接呼び出しの拒否理由。
type callableError struct {
	// Status はエラーの分類。
	Status string `json:"status"`
	// Message は人が読める理由。
	Message string `json:"message"`
}

// handleCallable は直接呼び出しを処理する。
// 成功時は {"result": ...}、拒否時は {"error": {"status", "message"}} を返す。
func (s *Server) handleCallable(c *gin.Context) {
	var body callableRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": callableError{Status: "INVALID_ARGUMENT", Message: "リクエストボディが不正です"}})
		return
	}

	req := event.CallableRequest{Name: c.Param("name"), Data: body.Data}
	if uid := middleware.GetUserID(c); uid != "" {
		req.Auth = &event.Auth{UID: uid, Email: middleware.GetEmail(c)}
	}

	result, err := s.adapter.Call(c.Request.Context(), req)
	if err != nil {
		code, status, msg := classifyCallableError(err)
		c.JSON(code, gin.H{"error": callableError{Status: status, Message: msg}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

// classifyCallableError はエラーをHTTPステータスと拒否理由に変換する。
func classifyCallableError(err error) (int, string, string) {
	switch {
	case errors.Is(err, event.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, event.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED", err.Error()
	case errors.Is(err, ErrUnknownCallable):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	default:
		return http.StatusInternalServerError, "INTERNAL", "呼び出しの処理に失敗しました"
	}
}
