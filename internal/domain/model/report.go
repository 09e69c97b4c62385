package model

// Status — итоговое решение по аккаунту.
type Status string

const (
	// StatusVerified — аккаунт прошёл проверку (0 или 1 red flag)
	StatusVerified Status = "VERIFIED"
	// StatusDismissed — мгновенный отказ либо 2+ red flags
	StatusDismissed Status = "DISMISSED"
)

// Report — отчёт одного прогона верификации.
// Плоская структура, пригодная для выгрузки в файл.
type Report struct {
	UserID            int64    `json:"user_id"`
	DisplayName       string   `json:"display_name"`
	Username          string   `json:"username"`
	InstantDismissals []string `json:"instant_dismissals"`
	RedFlags          []string `json:"red_flags"`
	GroupCount        int      `json:"group_count"`
	// FriendCount — nil, если social-проверки не выполнялись или счётчик недоступен
	FriendCount *int `json:"friend_count"`
}

// NewReport собирает отчёт, копируя списки причин.
// Пустые списки сериализуются как [], а не null.
func NewReport(p Profile, dismissals, redFlags []string, groupCount int, friendCount *int) Report {
	r := Report{
		UserID:            p.UserID,
		DisplayName:       p.DisplayName,
		Username:          p.Username,
		InstantDismissals: append(make([]string, 0, len(dismissals)), dismissals...),
		RedFlags:          append(make([]string, 0, len(redFlags)), redFlags...),
		GroupCount:        groupCount,
	}
	if friendCount != nil {
		fc := *friendCount
		r.FriendCount = &fc
	}
	return r
}
