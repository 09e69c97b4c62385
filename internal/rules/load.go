package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// document — формат файла правил (JSON или YAML).
// Пороги — указатели, чтобы отличать «не задано» от нуля.
type document struct {
	MinAccountAgeDays      *int `json:"min_account_age_days" yaml:"min_account_age_days"`
	MinFriendCount         *int `json:"min_friend_count" yaml:"min_friend_count"`
	MinNonAffiliatedGroups *int `json:"min_non_affiliated_groups" yaml:"min_non_affiliated_groups"`
	MinBadgeCount          *int `json:"min_badge_count" yaml:"min_badge_count"`
	OldestBadgeSampleSize  *int `json:"oldest_badge_sample_size" yaml:"oldest_badge_sample_size"`
	UsernameDigitThreshold *int `json:"username_digit_threshold" yaml:"username_digit_threshold"`

	FriendlyOwnerIDs         []int64  `json:"friendly_owner_ids" yaml:"friendly_owner_ids"`
	AffiliatedGroupIDs       []int64  `json:"affiliated_group_ids" yaml:"affiliated_group_ids"`
	BlacklistedGroupIDs      []int64  `json:"blacklisted_group_ids" yaml:"blacklisted_group_ids"`
	AffiliatedBadgeIDs       []int64  `json:"affiliated_badge_ids" yaml:"affiliated_badge_ids"`
	PrimaryBlacklistIDs      []int64  `json:"primary_blacklist_ids" yaml:"primary_blacklist_ids"`
	OrganizationBlacklistIDs []int64  `json:"organization_blacklist_ids" yaml:"organization_blacklist_ids"`
	NSFWWords                []string `json:"nsfw_words" yaml:"nsfw_words"`
	ImpersonationUsernames   []string `json:"impersonation_usernames" yaml:"impersonation_usernames"`

	Labels struct {
		Organization     string `json:"organization" yaml:"organization"`
		PrimaryBlacklist string `json:"primary_blacklist" yaml:"primary_blacklist"`
		Affiliation      string `json:"affiliation" yaml:"affiliation"`
	} `json:"labels" yaml:"labels"`
}

// LoadFile читает документ правил с диска.
// Формат определяется расширением: .yaml/.yml — YAML, иначе JSON.
// Отсутствие файла или некорректное содержимое — фатальная ошибка старта.
func LoadFile(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("файл правил %s не найден: %w", path, err)
		}
		return nil, fmt.Errorf("чтение файла правил %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

// ParseJSON разбирает документ правил в формате JSON.
// Неизвестные поля считаются ошибкой (опечатка в ключе не должна молча отключать правило).
func ParseJSON(data []byte) (*Params, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("файл правил не является корректным JSON: %w", err)
	}
	// После документа допустимы только пробельные символы.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("файл правил не является корректным JSON: лишние данные после документа")
	}
	return doc.params()
}

// ParseYAML разбирает документ правил в формате YAML.
func ParseYAML(data []byte) (*Params, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("файл правил пуст")
		}
		return nil, fmt.Errorf("файл правил не является корректным YAML: %w", err)
	}
	return doc.params()
}

// params применяет значения по умолчанию и строит Params.
func (d *document) params() (*Params, error) {
	th := DefaultThresholds()
	setIfPresent(&th.MinAccountAgeDays, d.MinAccountAgeDays)
	setIfPresent(&th.MinFriendCount, d.MinFriendCount)
	setIfPresent(&th.MinNonAffiliatedGroups, d.MinNonAffiliatedGroups)
	setIfPresent(&th.MinBadgeCount, d.MinBadgeCount)
	setIfPresent(&th.OldestBadgeSampleSize, d.OldestBadgeSampleSize)
	setIfPresent(&th.UsernameDigitThreshold, d.UsernameDigitThreshold)

	return NewParams(th, Sets{
		FriendlyOwnerIDs:         d.FriendlyOwnerIDs,
		AffiliatedGroupIDs:       d.AffiliatedGroupIDs,
		BlacklistedGroupIDs:      d.BlacklistedGroupIDs,
		AffiliatedBadgeIDs:       d.AffiliatedBadgeIDs,
		PrimaryBlacklistIDs:      d.PrimaryBlacklistIDs,
		OrganizationBlacklistIDs: d.OrganizationBlacklistIDs,
		NSFWWords:                d.NSFWWords,
		ImpersonationUsernames:   d.ImpersonationUsernames,
	}, Labels{
		Organization:     d.Labels.Organization,
		PrimaryBlacklist: d.Labels.PrimaryBlacklist,
		Affiliation:      d.Labels.Affiliation,
	})
}

func setIfPresent(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
