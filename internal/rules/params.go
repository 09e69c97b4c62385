// Пакет rules — движок правил верификации.
//
// Все правила — чистые функции от входных данных и *Params.
// Params строится один раз при старте процесса и дальше только читается,
// поэтому один экземпляр разделяется всеми прогонами без блокировок.
package rules

import (
	"fmt"
	"strings"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// Значения порогов по умолчанию (если документ правил их не задаёт).
const (
	DefaultMinAccountAgeDays      = 60
	DefaultMinFriendCount         = 30
	DefaultMinNonAffiliatedGroups = 13
	DefaultMinBadgeCount          = 300
	DefaultOldestBadgeSampleSize  = 90
	DefaultUsernameDigitThreshold = 4
)

// Метки по умолчанию, подставляемые в тексты причин.
const (
	DefaultOrganizationLabel = "BA"
	DefaultBlacklistLabel    = "IFD"
	DefaultAffiliationLabel  = "British Army"
)

// Labels — человекочитаемые имена, используемые в текстах причин.
type Labels struct {
	// Organization — организация, для которой идёт верификация
	Organization string
	// PrimaryBlacklist — имя основного (объединяемого) чёрного списка
	PrimaryBlacklist string
	// Affiliation — название «семейства» групп; в нижнем регистре служит фразой поиска
	Affiliation string
}

// Params — неизменяемый набор параметров правил.
// Поля закрыты; снаружи доступны только методы чтения.
type Params struct {
	minAccountAgeDays      int
	minFriendCount         int
	minNonAffiliatedGroups int
	minBadgeCount          int
	oldestBadgeSampleSize  int
	usernameDigitThreshold int

	friendlyOwners        model.IDSet
	affiliatedGroups      model.IDSet
	blacklistedGroups     model.IDSet
	affiliatedBadges      model.IDSet
	primaryBlacklist      model.IDSet
	organizationBlacklist model.IDSet
	// nsfwWords — в нижнем регистре, без дубликатов, в порядке документа
	nsfwWords []string
	// impersonation — логины в нижнем регистре
	impersonation map[string]struct{}

	labels            Labels
	affiliationPhrase string
}

// Thresholds — целочисленные пороги правил.
type Thresholds struct {
	MinAccountAgeDays      int `json:"min_account_age_days"`
	MinFriendCount         int `json:"min_friend_count"`
	MinNonAffiliatedGroups int `json:"min_non_affiliated_groups"`
	MinBadgeCount          int `json:"min_badge_count"`
	OldestBadgeSampleSize  int `json:"oldest_badge_sample_size"`
	UsernameDigitThreshold int `json:"username_digit_threshold"`
}

// Sets — наборы идентификаторов и строк для правил.
type Sets struct {
	FriendlyOwnerIDs         []int64
	AffiliatedGroupIDs       []int64
	BlacklistedGroupIDs      []int64
	AffiliatedBadgeIDs       []int64
	PrimaryBlacklistIDs      []int64
	OrganizationBlacklistIDs []int64
	NSFWWords                []string
	ImpersonationUsernames   []string
}

// NewParams строит Params из порогов, наборов и меток.
// Пустые метки заменяются значениями по умолчанию.
// Возвращает ошибку для отрицательных порогов, неположительного размера выборки
// и неположительного порога цифр в логине.
func NewParams(th Thresholds, sets Sets, labels Labels) (*Params, error) {
	checks := []struct {
		name  string
		value int
	}{
		{"min_account_age_days", th.MinAccountAgeDays},
		{"min_friend_count", th.MinFriendCount},
		{"min_non_affiliated_groups", th.MinNonAffiliatedGroups},
		{"min_badge_count", th.MinBadgeCount},
	}
	for _, c := range checks {
		if c.value < 0 {
			return nil, fmt.Errorf("%s: значение должно быть >= 0, получено %d", c.name, c.value)
		}
	}
	if th.OldestBadgeSampleSize <= 0 {
		return nil, fmt.Errorf("oldest_badge_sample_size: значение должно быть > 0, получено %d", th.OldestBadgeSampleSize)
	}
	if th.UsernameDigitThreshold <= 0 {
		return nil, fmt.Errorf("username_digit_threshold: значение должно быть > 0, получено %d", th.UsernameDigitThreshold)
	}

	if labels.Organization == "" {
		labels.Organization = DefaultOrganizationLabel
	}
	if labels.PrimaryBlacklist == "" {
		labels.PrimaryBlacklist = DefaultBlacklistLabel
	}
	if labels.Affiliation == "" {
		labels.Affiliation = DefaultAffiliationLabel
	}

	p := &Params{
		minAccountAgeDays:      th.MinAccountAgeDays,
		minFriendCount:         th.MinFriendCount,
		minNonAffiliatedGroups: th.MinNonAffiliatedGroups,
		minBadgeCount:          th.MinBadgeCount,
		oldestBadgeSampleSize:  th.OldestBadgeSampleSize,
		usernameDigitThreshold: th.UsernameDigitThreshold,

		friendlyOwners:        model.NewIDSet(sets.FriendlyOwnerIDs...),
		affiliatedGroups:      model.NewIDSet(sets.AffiliatedGroupIDs...),
		blacklistedGroups:     model.NewIDSet(sets.BlacklistedGroupIDs...),
		affiliatedBadges:      model.NewIDSet(sets.AffiliatedBadgeIDs...),
		primaryBlacklist:      model.NewIDSet(sets.PrimaryBlacklistIDs...),
		organizationBlacklist: model.NewIDSet(sets.OrganizationBlacklistIDs...),
		impersonation:         make(map[string]struct{}, len(sets.ImpersonationUsernames)),

		labels:            labels,
		affiliationPhrase: strings.ToLower(labels.Affiliation),
	}

	seen := make(map[string]struct{}, len(sets.NSFWWords))
	for _, w := range sets.NSFWWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		p.nsfwWords = append(p.nsfwWords, w)
	}

	for _, u := range sets.ImpersonationUsernames {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			p.impersonation[u] = struct{}{}
		}
	}

	return p, nil
}

// DefaultThresholds возвращает пороги по умолчанию.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAccountAgeDays:      DefaultMinAccountAgeDays,
		MinFriendCount:         DefaultMinFriendCount,
		MinNonAffiliatedGroups: DefaultMinNonAffiliatedGroups,
		MinBadgeCount:          DefaultMinBadgeCount,
		OldestBadgeSampleSize:  DefaultOldestBadgeSampleSize,
		UsernameDigitThreshold: DefaultUsernameDigitThreshold,
	}
}

// Thresholds возвращает копию порогов.
func (p *Params) Thresholds() Thresholds {
	return Thresholds{
		MinAccountAgeDays:      p.minAccountAgeDays,
		MinFriendCount:         p.minFriendCount,
		MinNonAffiliatedGroups: p.minNonAffiliatedGroups,
		MinBadgeCount:          p.minBadgeCount,
		OldestBadgeSampleSize:  p.oldestBadgeSampleSize,
		UsernameDigitThreshold: p.usernameDigitThreshold,
	}
}

// Labels возвращает метки причин.
func (p *Params) Labels() Labels {
	return p.labels
}

// PrimaryBlacklist возвращает статический основной чёрный список.
// IDSet неизменяем, поэтому отдаётся без копирования.
func (p *Params) PrimaryBlacklist() model.IDSet {
	return p.primaryBlacklist
}

// Summary — размеры настроенных наборов (для сводки конфигурации).
type Summary struct {
	FriendlyOwnerIDs         int        `json:"friendly_owner_ids"`
	AffiliatedGroupIDs       int        `json:"affiliated_group_ids"`
	BlacklistedGroupIDs      int        `json:"blacklisted_group_ids"`
	AffiliatedBadgeIDs       int        `json:"affiliated_badge_ids"`
	PrimaryBlacklistIDs      int        `json:"primary_blacklist_ids"`
	OrganizationBlacklistIDs int        `json:"organization_blacklist_ids"`
	NSFWWords                int        `json:"nsfw_words"`
	ImpersonationUsernames   int        `json:"impersonation_usernames"`
	Thresholds               Thresholds `json:"thresholds"`
}

// Summary возвращает сводку параметров.
func (p *Params) Summary() Summary {
	return Summary{
		FriendlyOwnerIDs:         p.friendlyOwners.Len(),
		AffiliatedGroupIDs:       p.affiliatedGroups.Len(),
		BlacklistedGroupIDs:      p.blacklistedGroups.Len(),
		AffiliatedBadgeIDs:       p.affiliatedBadges.Len(),
		PrimaryBlacklistIDs:      p.primaryBlacklist.Len(),
		OrganizationBlacklistIDs: p.organizationBlacklist.Len(),
		NSFWWords:                len(p.nsfwWords),
		ImpersonationUsernames:   len(p.impersonation),
		Thresholds:               p.Thresholds(),
	}
}
