// Пакет model — доменные модели сервиса верификации аккаунтов.
// Profile, GroupMembership и Badge — снимки данных платформы за один прогон,
// Report — итоговый отчёт прогона.
package model

import "time"

// Profile — снимок публичного профиля пользователя платформы.
// Создаётся один раз за прогон и больше не изменяется.
type Profile struct {
	// UserID — идентификатор пользователя (> 0)
	UserID int64
	// Username — логин (name)
	Username string
	// DisplayName — отображаемое имя
	DisplayName string
	// Created — момент создания аккаунта в исходном виде.
	// Хранится строкой: правило возраста различает «нет значения» и «не парсится».
	Created string
}

// GroupMembership — членство пользователя в одной группе.
type GroupMembership struct {
	GroupID   int64
	GroupName string
	// OwnerUserID — владелец группы; nil, если владельца нет (не путать с ID 0)
	OwnerUserID *int64
	RoleName    string
}

// Badge — значок из истории пользователя.
type Badge struct {
	BadgeID int64
	Name    string
	// AwardedAt — время выдачи; nil, если платформа его не вернула
	AwardedAt *time.Time
}
