// verification.go — прогон проверки аккаунта.
// Проводит прогон через автомат runstate, собирает данные платформы
// и передаёт их правилам в установленном порядке.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/rbxverifier/internal/blacklist"
	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/domain/runstate"
	"github.com/bigkaa/rbxverifier/internal/rules"
)

// Ошибки сервисного слоя.
var (
	// ErrUserNotFound — логин не удалось сопоставить с ID. Отчёт не строится.
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrFetchFailed — не удалось загрузить профиль или группы. Правила не выполнялись.
	ErrFetchFailed = errors.New("не удалось загрузить данные пользователя")
)

// Prometheus-метрики прогонов.
var (
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rv_verifications_total",
		Help: "Завершённые прогоны проверки по итоговому статусу.",
	}, []string{"status"})
	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rv_verification_duration_seconds",
		Help:    "Длительность прогона проверки.",
		Buckets: prometheus.DefBuckets,
	})
	ruleReasonsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rv_rule_reasons_total",
		Help: "Сработавшие правила по группе правил и виду причины.",
	}, []string{"rule", "kind"})
	blacklistMergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rv_blacklist_merges_total",
		Help: "Исходы объединения с дополнительным чёрным списком.",
	}, []string{"outcome"})
)

// Значения статуса для метрик неуспешных прогонов.
const (
	statusNotFound    = "NOT_FOUND"
	statusFetchFailed = "FETCH_FAILED"
)

// Виды причин.
const (
	SeverityDismissal = "dismissal"
	SeverityRedFlag   = "red_flag"
)

// BlacklistSummary — исход объединения чёрных списков для ответа.
type BlacklistSummary struct {
	Outcome blacklist.Outcome `json:"outcome"`
	Added   int               `json:"added"`
}

// Result — результат успешного прогона.
type Result struct {
	RunID       string                      `json:"run_id"`
	Status      model.Status                `json:"status"`
	Report      model.Report                `json:"report"`
	Blacklist   BlacklistSummary            `json:"blacklist"`
	Transitions []runstate.TransitionRecord `json:"transitions"`
}

// Verifier — оркестратор прогона. Безопасен для конкурентного использования:
// состояние прогона живёт в стеке вызова, Params только читаются.
type Verifier struct {
	platform  Platform
	badges    *BadgeFetcher
	blacklist blacklist.Source
	params    *rules.Params
	sink      EventSink
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewVerifier создаёт оркестратор.
// src — источник дополнительного чёрного списка (nil — дополнительные списки не поддерживаются).
// sink — приёмник событий (nil — события отбрасываются).
func NewVerifier(
	platform Platform,
	src blacklist.Source,
	params *rules.Params,
	sink EventSink,
	logger *slog.Logger,
) *Verifier {
	if sink == nil {
		sink = NopSink{}
	}
	return &Verifier{
		platform:  platform,
		badges:    NewBadgeFetcher(platform, logger),
		blacklist: src,
		params:    params,
		sink:      sink,
		logger:    logger.With(slog.String("component", "verifier")),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Params возвращает параметры правил, с которыми работает оркестратор.
func (v *Verifier) Params() *rules.Params {
	return v.params
}

// run — состояние одного прогона.
type run struct {
	id       string
	username string
	userID   int64
	machine  *runstate.Machine
}

// Verify выполняет прогон для логина.
// blacklistURL — адрес дополнительного чёрного списка (пустая строка — без него).
//
// Ошибки:
//   - ErrUserNotFound — логин не найден (или поиск не удался)
//   - ErrFetchFailed — не загрузились профиль или группы
func (v *Verifier) Verify(ctx context.Context, username, blacklistURL string) (*Result, error) {
	start := time.Now()
	defer func() {
		verificationDuration.Observe(time.Since(start).Seconds())
	}()

	r := &run{id: v.newID(), username: username, machine: runstate.New()}
	v.emit(ctx, r, Event{Kind: EventRunStarted})

	// START → IDENTITY_RESOLVED
	userID, err := v.platform.ResolveUserID(ctx, username)
	if err != nil {
		v.fail(ctx, r, runstate.NotFound, statusNotFound, err)
		return nil, fmt.Errorf("%w: %q: %w", ErrUserNotFound, username, err)
	}
	r.userID = userID
	if err := v.transition(ctx, r, runstate.IdentityResolved); err != nil {
		return nil, err
	}

	// IDENTITY_RESOLVED → PROFILE_LOADED: профиль и группы параллельно
	var (
		profile model.Profile
		groups  []model.GroupMembership
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := v.platform.Profile(gctx, userID)
		if err != nil {
			return fmt.Errorf("профиль: %w", err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		gs, err := v.platform.Groups(gctx, userID)
		if err != nil {
			return fmt.Errorf("группы: %w", err)
		}
		groups = gs
		return nil
	})
	if err := g.Wait(); err != nil {
		v.fail(ctx, r, runstate.FetchFailed, statusFetchFailed, err)
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	profile.UserID = userID
	if err := v.transition(ctx, r, runstate.ProfileLoaded); err != nil {
		return nil, err
	}

	// Объединённый список живёт только в этом прогоне
	merged, mergeErr := blacklist.Resolve(ctx, v.blacklist, v.params.PrimaryBlacklist(), blacklistURL)
	blacklistMergesTotal.WithLabelValues(string(merged.Outcome)).Inc()
	mergeEvent := Event{Kind: EventBlacklistMerged, Outcome: string(merged.Outcome), Added: merged.Added}
	if mergeErr != nil {
		mergeEvent.Message = mergeErr.Error()
	}
	v.emit(ctx, r, mergeEvent)

	// PROFILE_LOADED → INSTANT_CHECKS
	if err := v.transition(ctx, r, runstate.InstantChecks); err != nil {
		return nil, err
	}
	instant := rules.InstantChecks(v.now(), rules.Input{
		Profile:   profile,
		Groups:    groups,
		Blacklist: merged.Set,
	}, v.params)
	for _, reason := range instant.Dismissals {
		v.reason(ctx, r, "instant", SeverityDismissal, reason)
	}
	if instant.UsernameFlag != "" {
		v.reason(ctx, r, "username", SeverityRedFlag, instant.UsernameFlag)
	}

	// INSTANT_CHECKS → DISMISSED | SOCIAL_CHECKS
	next := runstate.SocialChecks
	if len(instant.Dismissals) > 0 {
		next = runstate.Dismissed
	}
	if err := v.transition(ctx, r, next); err != nil {
		return nil, err
	}

	decision := rules.Decide(instant, groups, func() rules.SocialMetrics {
		return v.socialMetrics(ctx, userID)
	}, v.params)

	if decision.SocialEvaluated {
		socialFlags := decision.RedFlags
		if instant.UsernameFlag != "" {
			socialFlags = socialFlags[1:]
		}
		for _, reason := range socialFlags {
			v.reason(ctx, r, "social", SeverityRedFlag, reason)
		}
	}

	if err := v.transition(ctx, r, runstate.Final); err != nil {
		return nil, err
	}

	var friendCount *int
	if decision.SocialEvaluated {
		friendCount = decision.Social.FriendCount
	}
	report := model.NewReport(profile, decision.Dismissals, decision.RedFlags, len(groups), friendCount)

	verificationsTotal.WithLabelValues(string(decision.Status)).Inc()
	v.emit(ctx, r, Event{Kind: EventRunCompleted, Status: decision.Status, Report: &report})

	return &Result{
		RunID:       r.id,
		Status:      decision.Status,
		Report:      report,
		Blacklist:   BlacklistSummary{Outcome: merged.Outcome, Added: merged.Added},
		Transitions: r.machine.History(),
	}, nil
}

// socialMetrics собирает число друзей, счётчик бейджей и выборку старейших бейджей параллельно.
// Ни один из запросов не может прервать прогон.
func (v *Verifier) socialMetrics(ctx context.Context, userID int64) rules.SocialMetrics {
	th := v.params.Thresholds()
	var m rules.SocialMetrics

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := v.platform.FriendCount(gctx, userID)
		if err != nil {
			v.logger.Warn("Не удалось получить число друзей",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		m.FriendCount = &n
		return nil
	})
	g.Go(func() error {
		m.BadgeCount = v.badges.ThresholdCount(gctx, userID, th.MinBadgeCount)
		return nil
	})
	g.Go(func() error {
		m.OldestBadges = v.badges.OldestSample(gctx, userID, th.OldestBadgeSampleSize)
		return nil
	})
	_ = g.Wait()

	return m
}

// transition выполняет переход автомата.
// Ошибка перехода означает ошибку в коде оркестратора и возвращается как *runstate.TransitionError.
func (v *Verifier) transition(ctx context.Context, r *run, to runstate.State) error {
	from := r.machine.Current()
	if err := r.machine.TransitionTo(to); err != nil {
		v.logger.Error("Недопустимый переход прогона",
			slog.String("run_id", r.id),
			slog.String("error", err.Error()),
		)
		return err
	}
	v.emit(ctx, r, Event{Kind: EventTransition, From: from, To: to})
	return nil
}

// fail переводит прогон в конечное состояние ошибки.
func (v *Verifier) fail(ctx context.Context, r *run, to runstate.State, status string, cause error) {
	_ = v.transition(ctx, r, to)
	verificationsTotal.WithLabelValues(status).Inc()
	v.emit(ctx, r, Event{Kind: EventRunFailed, To: to, Message: cause.Error()})
}

func (v *Verifier) reason(ctx context.Context, r *run, rule, severity, message string) {
	ruleReasonsTotal.WithLabelValues(rule, severity).Inc()
	v.emit(ctx, r, Event{Kind: EventReason, Rule: rule, Severity: severity, Message: message})
}

func (v *Verifier) emit(ctx context.Context, r *run, e Event) {
	e.RunID = r.id
	e.Username = r.username
	e.UserID = r.userID
	e.At = v.now().UTC()
	v.sink.Emit(ctx, e)
}
