package model

import "sort"

// IDSet — неизменяемое множество идентификаторов.
// Конструктор копирует вход, Union возвращает новое множество,
// поэтому экземпляр можно разделять между горутинами без блокировок.
type IDSet struct {
	m map[int64]struct{}
}

// NewIDSet создаёт множество из перечисленных идентификаторов (дубликаты схлопываются).
func NewIDSet(ids ...int64) IDSet {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return IDSet{m: m}
}

// Has проверяет принадлежность идентификатора множеству.
func (s IDSet) Has(id int64) bool {
	_, ok := s.m[id]
	return ok
}

// Len возвращает мощность множества.
func (s IDSet) Len() int {
	return len(s.m)
}

// Union возвращает новое множество — объединение s и other.
// Ни s, ни other не изменяются.
func (s IDSet) Union(other IDSet) IDSet {
	m := make(map[int64]struct{}, len(s.m)+len(other.m))
	for id := range s.m {
		m[id] = struct{}{}
	}
	for id := range other.m {
		m[id] = struct{}{}
	}
	return IDSet{m: m}
}

// Equal сравнивает множества по значению.
func (s IDSet) Equal(other IDSet) bool {
	if len(s.m) != len(other.m) {
		return false
	}
	for id := range s.m {
		if _, ok := other.m[id]; !ok {
			return false
		}
	}
	return true
}

// IDs возвращает элементы множества по возрастанию.
func (s IDSet) IDs() []int64 {
	ids := make([]int64, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
