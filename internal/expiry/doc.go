// Package expiry は公開期限を過ぎたストーリーを定期的に非公開にする。
//
// ストーリーは削除せず isActive を false にするだけなので、処理は何度実行しても結果が変わらない。
package expiry
