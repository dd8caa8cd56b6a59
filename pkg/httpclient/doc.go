// Package httpclient は外部サービスへのJSON形式のHTTP通信を行うクライアントを提供する。
//
// プッシュ配信ゲートウェイへの送信に使用する。
// 2xx以外の応答は *StatusError として返し、呼び出し側がステータスコードで分岐できるようにする。
package httpclient
