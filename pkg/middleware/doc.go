// Package middleware はトリガーサーバーのHTTP APIで使用する共通ミドルウェアを提供する。
//
// 呼び出し元のJWT検証、パニックリカバリ、CORS設定を含む。
// 直接呼び出しエンドポイントは未認証の呼び出しも受け付け、拒否の判断をハンドラに委ねるため、
// 認証を必須としない OptionalJWTAuth を用意している。
package middleware
