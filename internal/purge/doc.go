// Package purge は全参加者が削除したチャットを、配下のメッセージごと完全に削除する。
//
// 削除対象かどうかは毎回チャットの最新状態から判定し、保存済みのカーソルは持たない。
// 途中で失敗しても次の書き込みイベントや再配送で同じ手順が再開され、
// 既に削除済みのチャットに対しては何も書き込まない。
package purge
