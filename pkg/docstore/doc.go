// Package docstore はチャットアプリの状態を保持するドキュメントストアを提供する。
//
// ドキュメントは "chats/{chatId}/messages/{messageId}" のようなスラッシュ区切りの
// パスで識別され、JSONとして保存される。ポイント読み取り、フィルタ付きクエリ
// （ドキュメントID順・カーソル継続）、マージ書き込み、最大500件のアトミックな
// 一括書き込みを提供する。
//
// コミットされた作成・更新・削除は Observer に変更イベントとして通知される。
// トリガーアダプタはこの通知を受けてイベントハンドラを起動する。
package docstore
