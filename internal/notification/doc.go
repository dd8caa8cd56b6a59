// Package notification は新着メッセージのプッシュ通知を扱う。
//
// Resolver がメッセージから宛先と通知内容を決定し、Dispatcher が宛先ごとに
// 配信トークンを解決してプッシュ配信サービスに送信する。宛先ごとの失敗は互いに影響しない。
//
// 送信者名の解決に失敗しても通知は止めず、既定のラベルで送信する。
package notification
