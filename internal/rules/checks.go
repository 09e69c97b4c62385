package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// Форматы даты создания аккаунта без зоны — трактуются как UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseCreated разбирает дату создания аккаунта.
// Принимает RFC 3339 (с дробными секундами, "Z" или смещением)
// и ISO 8601 без зоны (считается UTC).
func ParseCreated(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("неизвестный формат даты: %q", raw)
}

// CheckAccountAge — правило возраста аккаунта (instant dismissal).
// Возвращает причину и true, если аккаунт должен быть отклонён.
// Неизвестный возраст считается подозрительным.
func CheckAccountAge(created string, now time.Time, p *Params) (string, bool) {
	if strings.TrimSpace(created) == "" {
		return "Could not verify account age.", true
	}

	createdAt, err := ParseCreated(created)
	if err != nil {
		return fmt.Sprintf("Could not parse account creation date: %s", created), true
	}

	days := int(math.Floor(now.Sub(createdAt).Hours() / 24))
	if days < p.minAccountAgeDays {
		return fmt.Sprintf("Account is %d days old (under %d).", days, p.minAccountAgeDays), true
	}
	return "", false
}

// UsernameVerdict — результат правила логина.
// Не более одной причины отказа и не более одного red flag.
type UsernameVerdict struct {
	Dismissal string
	RedFlag   string
}

// CheckUsername — правило логина.
// Проверки в фиксированном порядке, первая сработавшая завершает правило:
// "alt" → имперсонация → NSFW-слово → спам цифрами (red flag).
func CheckUsername(username string, p *Params) UsernameVerdict {
	name := strings.ToLower(username)

	if strings.Contains(name, "alt") {
		return UsernameVerdict{Dismissal: "Username contains 'alt'."}
	}
	if _, ok := p.impersonation[name]; ok {
		return UsernameVerdict{Dismissal: fmt.Sprintf("Username impersonates a %s member.", p.labels.Organization)}
	}
	for _, w := range p.nsfwWords {
		if strings.Contains(name, w) {
			return UsernameVerdict{Dismissal: fmt.Sprintf("Username contains offensive word: '%s'.", w)}
		}
	}

	digits := 0
	for _, r := range name {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= p.usernameDigitThreshold {
		return UsernameVerdict{RedFlag: fmt.Sprintf("Username looks spammy (%d+ digits).", p.usernameDigitThreshold)}
	}
	return UsernameVerdict{}
}

// CheckBlacklists — правило чёрных списков и групп (только instant dismissal).
// merged — объединённый основной список текущего прогона.
// Проверки независимы: все сработавшие причины накапливаются.
func CheckBlacklists(userID int64, groups []model.GroupMembership, merged model.IDSet, p *Params) []string {
	var reasons []string

	if merged.Has(userID) {
		if p.primaryBlacklist.Has(userID) {
			reasons = append(reasons, fmt.Sprintf("User is on the %s Blacklist.", p.labels.PrimaryBlacklist))
		} else {
			reasons = append(reasons, fmt.Sprintf("User is on the %s Blacklist (live).", p.labels.PrimaryBlacklist))
		}
	}
	if p.organizationBlacklist.Has(userID) {
		reasons = append(reasons, fmt.Sprintf("User is on the %s Blacklist.", p.labels.Organization))
	}

	for _, g := range groups {
		if p.blacklistedGroups.Has(g.GroupID) {
			reasons = append(reasons, fmt.Sprintf("User is in a blacklisted group: %s.", g.GroupName))
		}
		if p.isUnauthorizedAffiliate(g) {
			reasons = append(reasons, fmt.Sprintf("User is in another %s group: %s.", p.labels.Affiliation, g.GroupName))
		}
	}

	return reasons
}

// isUnauthorizedAffiliate — группа называется как аффилированная,
// но не входит в allowlist и не принадлежит дружественному владельцу.
func (p *Params) isUnauthorizedAffiliate(g model.GroupMembership) bool {
	if p.affiliationPhrase == "" || !strings.Contains(strings.ToLower(g.GroupName), p.affiliationPhrase) {
		return false
	}
	if p.affiliatedGroups.Has(g.GroupID) {
		return false
	}
	if g.OwnerUserID != nil && p.friendlyOwners.Has(*g.OwnerUserID) {
		return false
	}
	return true
}

// SocialMetrics — данные для social-правил, собранные оркестратором.
type SocialMetrics struct {
	// FriendCount — nil, если счётчик получить не удалось
	FriendCount *int
	// BadgeCount — результат threshold-count (может быть частичным)
	BadgeCount int
	// OldestBadges — выборка самых старых значков
	OldestBadges []model.Badge
}

// CheckSocialActivity — social-правила (только red flags).
func CheckSocialActivity(groups []model.GroupMembership, m SocialMetrics, p *Params) []string {
	var flags []string

	switch {
	case m.FriendCount == nil:
		flags = append(flags, "Could not verify friend count.")
	case *m.FriendCount < p.minFriendCount:
		flags = append(flags, fmt.Sprintf("Fewer than %d friends (%d).", p.minFriendCount, *m.FriendCount))
	}

	if n := p.NonAffiliatedGroupCount(groups); n < p.minNonAffiliatedGroups {
		flags = append(flags, fmt.Sprintf("Fewer than %d non-%s groups (%d).", p.minNonAffiliatedGroups, p.labels.Organization, n))
	}

	if m.BadgeCount < p.minBadgeCount {
		flags = append(flags, fmt.Sprintf("Fewer than %d badges (%d total).", p.minBadgeCount, m.BadgeCount))
	}

	for _, b := range m.OldestBadges {
		if p.affiliatedBadges.Has(b.BadgeID) {
			flags = append(flags, fmt.Sprintf("%s-related badge found in oldest %d badges (ID: %d).",
				p.labels.Organization, p.oldestBadgeSampleSize, b.BadgeID))
			break
		}
	}

	return flags
}

// NonAffiliatedGroupCount считает группы, не входящие в allowlist организации.
func (p *Params) NonAffiliatedGroupCount(groups []model.GroupMembership) int {
	n := 0
	for _, g := range groups {
		if !p.affiliatedGroups.Has(g.GroupID) {
			n++
		}
	}
	return n
}
