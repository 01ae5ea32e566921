// Package server declares the failure conditions reported back to the acting
// client. No error here is ever visible to other members of a group, and none
// is fatal to the process.
package server

import "errors"

// User-facing failure text is kept verbatim from the production deployment,
// which serves a Russian-speaking audience. The error string is exactly what
// the client renders.
var (
	// ErrNameRequired rejects a create or join with a blank display name.
	ErrNameRequired = errors.New("Имя пользователя обязательно.")
	// ErrNewNameRequired rejects a rename to a blank display name.
	ErrNewNameRequired = errors.New("Имя обязательно.")
	// ErrNameTooLong rejects display names over the configured length cap.
	ErrNameTooLong = errors.New("Имя слишком длинное.")
	// ErrTooManyGroups rejects a create once the global group cap is reached.
	ErrTooManyGroups = errors.New("Слишком много групп. Попробуйте позже.")
	// ErrGroupNotFound rejects a join with a code no active group holds.
	ErrGroupNotFound = errors.New("Группа не найдена.")
	// ErrGroupFull rejects a join once the group's member cap is reached.
	ErrGroupFull = errors.New("В группе слишком много участников.")
	// ErrAlreadyInGroup rejects a create or join from a connection that is
	// already bound to a group.
	ErrAlreadyInGroup = errors.New("Вы уже в группе.")
	// ErrRenameFailed rejects a rename from a connection that is not a member
	// of any group.
	ErrRenameFailed = errors.New("Не удалось сменить имя.")
)
