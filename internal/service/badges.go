// badges.go — постраничная загрузка бейджей с двумя политиками остановки:
// выборка N самых старых и подсчёт до достижения порога.
package service

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
	"github.com/bigkaa/rbxverifier/internal/platform"
)

// BadgePageSize — фиксированный размер страницы бейджей.
const BadgePageSize = 100

var badgePagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rv_badge_pages_total",
	Help: "Количество запрошенных страниц бейджей по порядку сортировки.",
}, []string{"order"})

// BadgePager — источник страниц бейджей.
type BadgePager interface {
	BadgePage(ctx context.Context, userID int64, limit int, order platform.SortOrder, cursor string) (platform.BadgePage, error)
}

// BadgeFetcher — пагинатор бейджей. Ошибки не возвращает:
// сбой любого запроса останавливает пагинацию, собранное возвращается как есть.
type BadgeFetcher struct {
	pager  BadgePager
	logger *slog.Logger
}

// NewBadgeFetcher создаёт пагинатор.
func NewBadgeFetcher(pager BadgePager, logger *slog.Logger) *BadgeFetcher {
	return &BadgeFetcher{
		pager:  pager,
		logger: logger.With(slog.String("component", "badge_fetcher")),
	}
}

// OldestSample возвращает до sampleSize самых старых бейджей (по возрастанию).
// Сбой первого запроса даёт пустой срез.
func (f *BadgeFetcher) OldestSample(ctx context.Context, userID int64, sampleSize int) []model.Badge {
	sample := make([]model.Badge, 0)
	if sampleSize <= 0 {
		return sample
	}

	cursor := ""
	for len(sample) < sampleSize {
		page, err := f.page(ctx, userID, platform.SortAsc, cursor)
		if err != nil {
			f.logger.Warn("Выборка старейших бейджей прервана",
				slog.Int64("user_id", userID),
				slog.Int("collected", len(sample)),
				slog.String("error", err.Error()),
			)
			break
		}
		if len(page.Items) == 0 {
			break
		}
		sample = append(sample, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}
	return sample
}

// ThresholdCount считает бейджи (от новых к старым) и останавливается,
// как только сумма достигла passThreshold. При сбое возвращается частичная сумма.
func (f *BadgeFetcher) ThresholdCount(ctx context.Context, userID int64, passThreshold int) int {
	if passThreshold <= 0 {
		return 0
	}

	total := 0
	cursor := ""
	for {
		page, err := f.page(ctx, userID, platform.SortDesc, cursor)
		if err != nil {
			f.logger.Warn("Подсчёт бейджей прерван",
				slog.Int64("user_id", userID),
				slog.Int("counted", total),
				slog.String("error", err.Error()),
			)
			return total
		}
		if len(page.Items) == 0 {
			return total
		}
		total += len(page.Items)
		if total >= passThreshold || page.NextCursor == "" {
			return total
		}
		cursor = page.NextCursor
	}
}

func (f *BadgeFetcher) page(ctx context.Context, userID int64, order platform.SortOrder, cursor string) (platform.BadgePage, error) {
	badgePagesTotal.WithLabelValues(string(order)).Inc()
	return f.pager.BadgePage(ctx, userID, BadgePageSize, order, cursor)
}
