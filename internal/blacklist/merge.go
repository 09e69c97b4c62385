// Пакет blacklist — объединение статического чёрного списка
// с дополнительным списком, загружаемым на время одного прогона.
//
// Статический список (из документа правил) никогда не изменяется:
// Merge всегда строит новое множество. Объединённый список живёт
// только в пределах прогона и не кэшируется.
package blacklist

import (
	"strconv"
	"strings"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// Outcome — исход объединения для наблюдаемости.
// Всё, кроме OutcomeApplied, означает «используется только статический список»
// и не является ошибкой прогона.
type Outcome string

const (
	// OutcomeNotRequested — дополнительный список не запрошен
	OutcomeNotRequested Outcome = "not_requested"
	// OutcomeApplied — загружен хотя бы один ID
	OutcomeApplied Outcome = "applied"
	// OutcomeEmpty — загрузка успешна, но ни одного ID не распознано
	OutcomeEmpty Outcome = "empty"
	// OutcomeUnavailable — источник недоступен
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeRejected — URL не прошёл проверку доверенного хоста
	OutcomeRejected Outcome = "rejected"
)

// Merged — объединённый основной чёрный список одного прогона.
type Merged struct {
	// Set — объединение статического и дополнительного списков
	Set model.IDSet
	// Outcome — исход загрузки дополнительного списка
	Outcome Outcome
	// Added — количество ID в дополнительном списке (0 — информационно)
	Added int
}

// Static возвращает результат без дополнительного списка.
func Static(static model.IDSet, outcome Outcome) Merged {
	return Merged{Set: static, Outcome: outcome}
}

// Merge объединяет статический список с дополнительным.
// Пустой дополнительный список даёт статический без изменений и OutcomeEmpty.
// Операция идемпотентна и коммутативна по содержимому множества.
func Merge(static, supplementary model.IDSet) Merged {
	if supplementary.Len() == 0 {
		return Static(static, OutcomeEmpty)
	}
	return Merged{
		Set:     static.Union(supplementary),
		Outcome: OutcomeApplied,
		Added:   supplementary.Len(),
	}
}

// ParseIDs извлекает ID пользователей из CSV-подобного текста.
// Каждая строка делится по запятым, колонки обрезаются по пробелам;
// колонка принимается, только если целиком состоит из десятичных цифр.
func ParseIDs(text string) model.IDSet {
	var ids []int64
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		for _, col := range strings.Split(line, ",") {
			col = strings.TrimSpace(col)
			if !isDecimal(col) {
				continue
			}
			id, err := strconv.ParseInt(col, 10, 64)
			if err != nil {
				// Переполнение int64 — такого ID на платформе не бывает
				continue
			}
			ids = append(ids, id)
		}
	}
	return model.NewIDSet(ids...)
}

// isDecimal — непустая строка из ASCII-цифр.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
