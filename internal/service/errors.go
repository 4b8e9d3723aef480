// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — объект не найден (представление, запись журнала).
	ErrNotFound = errors.New("объект не найден")
	// ErrUnknownResource — ресурс отсутствует в каталоге.
	ErrUnknownResource = errors.New("неизвестный ресурс")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnsupportedFormat — формат отчёта не поддерживается.
	ErrUnsupportedFormat = errors.New("неподдерживаемый формат отчёта")
)
