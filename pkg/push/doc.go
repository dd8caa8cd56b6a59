// Package push はプッシュ配信サービスへの送信を抽象化する。
//
// HTTPSender は配信ゲートウェイにFCM v1形式のリクエストを送信し、
// LogSender は配信先が設定されていない開発環境でログ出力のみを行う。
package push
