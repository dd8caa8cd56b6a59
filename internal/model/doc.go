// Package model はドキュメントストアに保存されるチャット関連ドキュメントの型を定義する。
//
// コレクション構成:
//
//	users/{userId}
//	chats/{chatId}
//	chats/{chatId}/messages/{messageId}
//	stories/{storyId}
package model
