// Package trigger はイベントの発生源とハンドラをつなぐトリガーアダプタを提供する。
//
// イベントはドキュメントストアの変更通知、HTTP経由の外部配送、cronスケジュール、
// 直接呼び出しの4経路で届く。Adapter はイベントごとに独立した呼び出しとしてハンドラを実行し、
// エラーやパニックを記録して発生源には伝えない。直接呼び出しだけは呼び出し元に拒否理由を返す。
//
// ハンドラはプラットフォームの呼び出し方式に依存せず、EventHandler を実装するだけでよい。
package trigger
