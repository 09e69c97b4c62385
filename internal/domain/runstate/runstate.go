// Пакет runstate — конечный автомат одного прогона проверки.
//
//	START → IDENTITY_RESOLVED → PROFILE_LOADED → INSTANT_CHECKS
//	INSTANT_CHECKS → DISMISSED → FINAL
//	INSTANT_CHECKS → SOCIAL_CHECKS → FINAL
//	START → NOT_FOUND, IDENTITY_RESOLVED → FETCH_FAILED
//
// FINAL, NOT_FOUND и FETCH_FAILED — конечные состояния.
// Автомат принадлежит одному прогону и управляется из одной горутины.
package runstate

import (
	"fmt"
	"time"
)

// State — состояние прогона.
type State string

const (
	Start            State = "START"
	IdentityResolved State = "IDENTITY_RESOLVED"
	ProfileLoaded    State = "PROFILE_LOADED"
	InstantChecks    State = "INSTANT_CHECKS"
	Dismissed        State = "DISMISSED"
	SocialChecks     State = "SOCIAL_CHECKS"
	Final            State = "FINAL"
	NotFound         State = "NOT_FOUND"
	FetchFailed      State = "FETCH_FAILED"
)

// Коды ошибок перехода.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTerminal          = "TERMINAL_STATE"
)

// validTransitions — матрица допустимых переходов.
var validTransitions = map[State]map[State]bool{
	Start:            {IdentityResolved: true, NotFound: true},
	IdentityResolved: {ProfileLoaded: true, FetchFailed: true},
	ProfileLoaded:    {InstantChecks: true},
	InstantChecks:    {Dismissed: true, SocialChecks: true},
	Dismissed:        {Final: true},
	SocialChecks:     {Final: true},
	Final:            {},
	NotFound:         {},
	FetchFailed:      {},
}

// TransitionRecord — запись о переходе.
type TransitionRecord struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Machine — автомат прогона.
type Machine struct {
	current State
	history []TransitionRecord
	now     func() time.Time
}

// New создаёт автомат в состоянии START.
func New() *Machine {
	return &Machine{
		current: Start,
		history: make([]TransitionRecord, 0, 6),
		now:     time.Now,
	}
}

// Current возвращает текущее состояние.
func (m *Machine) Current() State {
	return m.current
}

// IsTerminal сообщает, достигнуто ли конечное состояние.
func (m *Machine) IsTerminal() bool {
	return IsTerminal(m.current)
}

// IsTerminal сообщает, является ли состояние конечным.
func IsTerminal(s State) bool {
	return s == Final || s == NotFound || s == FetchFailed
}

// CanTransitionTo проверяет, допустим ли переход.
func (m *Machine) CanTransitionTo(target State) bool {
	return validTransitions[m.current][target]
}

// TransitionTo выполняет переход.
// Недопустимый переход — ошибка программы, возвращается как *TransitionError.
func (m *Machine) TransitionTo(target State) error {
	if m.IsTerminal() {
		return &TransitionError{
			Code:    CodeTerminal,
			Message: fmt.Sprintf("прогон завершён в %s, переход в %s невозможен", m.current, target),
		}
	}
	if !m.CanTransitionTo(target) {
		return &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", m.current, target),
		}
	}

	m.history = append(m.history, TransitionRecord{
		From:      m.current,
		To:        target,
		Timestamp: m.now().UTC(),
	})
	m.current = target
	return nil
}

// History возвращает историю переходов (копия).
func (m *Machine) History() []TransitionRecord {
	result := make([]TransitionRecord, len(m.history))
	copy(result, m.history)
	return result
}

// Path возвращает последовательность пройденных состояний, начиная с START.
func (m *Machine) Path() []State {
	path := make([]State, 0, len(m.history)+1)
	path = append(path, Start)
	for _, r := range m.history {
		path = append(path, r.To)
	}
	return path
}

// TransitionError — ошибка перехода между состояниями прогона.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, TERMINAL_STATE)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
