package rules

import (
	"time"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// RedFlagDismissThreshold — с этого количества red flags аккаунт отклоняется.
// Ровно один red flag к отказу не приводит.
const RedFlagDismissThreshold = 2

// Input — данные instant-правил одного прогона.
type Input struct {
	Profile model.Profile
	Groups  []model.GroupMembership
	// Blacklist — объединённый основной чёрный список прогона
	Blacklist model.IDSet
}

// SocialProvider собирает данные для social-правил.
// Вызывается не более одного раза и только если instant-правила ничего не нашли.
type SocialProvider func() SocialMetrics

// InstantResult — результат instant-правил.
type InstantResult struct {
	Dismissals []string
	// UsernameFlag — red flag правила логина (пустая строка — нет)
	UsernameFlag string
}

// Decision — итог оценки.
type Decision struct {
	Status     model.Status
	Dismissals []string
	RedFlags   []string
	// SocialEvaluated — выполнялись ли social-правила
	SocialEvaluated bool
	// Social — собранные social-данные (нулевое значение, если не выполнялись)
	Social SocialMetrics
}

// InstantChecks выполняет правила возраста, логина и чёрных списков — строго в этом порядке,
// все три безусловно.
func InstantChecks(now time.Time, in Input, p *Params) InstantResult {
	var res InstantResult

	if reason, dismissed := CheckAccountAge(in.Profile.Created, now, p); dismissed {
		res.Dismissals = append(res.Dismissals, reason)
	}

	verdict := CheckUsername(in.Profile.Username, p)
	if verdict.Dismissal != "" {
		res.Dismissals = append(res.Dismissals, verdict.Dismissal)
	}
	res.UsernameFlag = verdict.RedFlag

	res.Dismissals = append(res.Dismissals, CheckBlacklists(in.Profile.UserID, in.Groups, in.Blacklist, p)...)

	return res
}

// Decide завершает оценку после instant-правил.
// При наличии причин мгновенного отказа social не вызывается вовсе:
// он дорогой (несколько постраничных запросов).
func Decide(instant InstantResult, groups []model.GroupMembership, social SocialProvider, p *Params) Decision {
	if len(instant.Dismissals) > 0 {
		d := Decision{
			Status:     model.StatusDismissed,
			Dismissals: instant.Dismissals,
		}
		if instant.UsernameFlag != "" {
			d.RedFlags = []string{instant.UsernameFlag}
		}
		return d
	}

	var flags []string
	if instant.UsernameFlag != "" {
		flags = append(flags, instant.UsernameFlag)
	}

	metrics := social()
	flags = append(flags, CheckSocialActivity(groups, metrics, p)...)

	status := model.StatusVerified
	if len(flags) >= RedFlagDismissThreshold {
		status = model.StatusDismissed
	}

	return Decision{
		Status:          status,
		RedFlags:        flags,
		SocialEvaluated: true,
		Social:          metrics,
	}
}

// Evaluate — полный комбинатор: instant-правила, затем (при необходимости) social.
func Evaluate(now time.Time, in Input, social SocialProvider, p *Params) Decision {
	return Decide(InstantChecks(now, in, p), in.Groups, social, p)
}
