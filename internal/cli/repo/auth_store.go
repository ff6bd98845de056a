package repo

// TokenStore хранит bearer-токен текущей сессии. Clear: logout.
type TokenStore interface {
	Save(token string) error
	Load() (string, error)
	Clear() error
}

// UserContextStore помнит последнего вошедшего пользователя и его id на сервере:
// по логину выбирается локальная база ключей.
type UserContextStore interface {
	SaveLogin(login string) error
	LoadLogin() (string, error)
	SaveUserID(login, id string) error
	LoadUserID(login string) (string, error)
}

// AuthStore: всё, что клиент сохраняет между запусками, кроме ключей.
type AuthStore interface {
	TokenStore
	UserContextStore
}
