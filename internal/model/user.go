// Package model はドメインモデルを定義する。
package model

import "time"

// RoleUser は一般ユーザーのロール。
const RoleUser = "user"

// User はサービス利用ユーザーを表す。
// PasswordHashはAPIレスポンスに含めない。
type User struct {
	ID           int64
	Email        string
	Name         *string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// Identity は認証済みリクエストの主体（プリンシパル）を表す。
// ユーザーストアから解決した値をリクエストゲートが読み取り専用で扱う。
type Identity struct {
	ID   int64
	Role string
}

// IdentityOf はUserから認証主体を生成する。
func IdentityOf(u *User) Identity {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{ID: u.ID, Role: role}
}

// UserPatch はユーザー更新で指定されたフィールドのみを保持する。
// nilのフィールドは更新しない。
type UserPatch struct {
	Email    *string
	Name     *string
	Password *string
}
