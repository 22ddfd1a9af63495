// Package model はドメインモデルを定義する。
package model

// Account はcodepadに登録されたアカウントを表す。
// パスワードは平文で保持する（ローカルストアはセキュリティ境界ではない）。
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// Avatar はdata URIまたはhttp(s)のURL。未設定の場合は空文字列。
	Avatar string `json:"avatar,omitempty"`
}

// Clone はアカウントのコピーを返す。nilの場合はnilを返す。
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
