// Package event はトリガーアダプタがハンドラに届けるイベントの型を提供する。
//
// ドキュメント作成、ドキュメント書き込み、タイマー発火、直接呼び出しの4種類があり、
// HTTP経由で外部から届く場合は Envelope に包まれる。
package event
