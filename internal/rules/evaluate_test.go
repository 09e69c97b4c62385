package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigkaa/rbxverifier/internal/domain/model"
)

// countingSocial возвращает SocialProvider и счётчик его вызовов.
func countingSocial(m SocialMetrics) (SocialProvider, *int) {
	calls := 0
	return func() SocialMetrics {
		calls++
		return m
	}, &calls
}

// TestEvaluate_InstantDismissalSkipsSocial — молодой аккаунт отклоняется сразу,
// social-данные не запрашиваются.
func TestEvaluate_InstantDismissalSkipsSocial(t *testing.T) {
	p := testParams(t)
	social, calls := countingSocial(SocialMetrics{FriendCount: intPtr(100), BadgeCount: 1000})

	d := Evaluate(testNow, Input{
		Profile:   model.Profile{UserID: 1, Username: "Tommy", Created: createdDaysAgo(10)},
		Groups:    groupsN(20),
		Blacklist: p.PrimaryBlacklist(),
	}, social, p)

	if d.Status != model.StatusDismissed {
		t.Errorf("Status = %s, ожидался DISMISSED", d.Status)
	}
	if *calls != 0 {
		t.Errorf("social вызван %d раз, ожидалось 0", *calls)
	}
	if d.SocialEvaluated {
		t.Error("SocialEvaluated = true при мгновенном отказе")
	}
	if diff := cmp.Diff([]string{"Account is 10 days old (under 60)."}, d.Dismissals); diff != "" {
		t.Errorf("Dismissals (-want +got):\n%s", diff)
	}
}

// TestEvaluate_InstantOrder проверяет порядок причин: возраст, логин, чёрные списки.
func TestEvaluate_InstantOrder(t *testing.T) {
	p := testParams(t)
	social, _ := countingSocial(SocialMetrics{})

	d := Evaluate(testNow, Input{
		Profile:   model.Profile{UserID: 13, Username: "MyAlt", Created: ""},
		Groups:    []model.GroupMembership{{GroupID: 666, GroupName: "Raiders"}},
		Blacklist: p.PrimaryBlacklist(),
	}, social, p)

	want := []string{
		"Could not verify account age.",
		"Username contains 'alt'.",
		"User is on the IFD Blacklist.",
		"User is in a blacklisted group: Raiders.",
	}
	if diff := cmp.Diff(want, d.Dismissals); diff != "" {
		t.Errorf("Dismissals (-want +got):\n%s", diff)
	}
}

// TestEvaluate_RedFlagBoundary проверяет границу 0/1 → VERIFIED, 2+ → DISMISSED.
func TestEvaluate_RedFlagBoundary(t *testing.T) {
	p := testParams(t)
	old := createdDaysAgo(1000)

	tests := []struct {
		name      string
		username  string
		groups    int
		metrics   SocialMetrics
		wantFlags int
		want      model.Status
	}{
		{
			name:      "ноль флагов",
			username:  "Tommy",
			groups:    20,
			metrics:   SocialMetrics{FriendCount: intPtr(40), BadgeCount: 500},
			wantFlags: 0,
			want:      model.StatusVerified,
		},
		{
			// 29 друзей — единственный флаг
			name:      "один флаг",
			username:  "Tommy",
			groups:    20,
			metrics:   SocialMetrics{FriendCount: intPtr(29), BadgeCount: 500},
			wantFlags: 1,
			want:      model.StatusVerified,
		},
		{
			name:      "два флага",
			username:  "Tommy",
			groups:    20,
			metrics:   SocialMetrics{FriendCount: intPtr(29), BadgeCount: 299},
			wantFlags: 2,
			want:      model.StatusDismissed,
		},
		{
			name:      "флаг логина плюс social-флаг",
			username:  "Tommy1234",
			groups:    20,
			metrics:   SocialMetrics{FriendCount: intPtr(29), BadgeCount: 500},
			wantFlags: 2,
			want:      model.StatusDismissed,
		},
		{
			name:      "только флаг логина",
			username:  "Tommy1234",
			groups:    20,
			metrics:   SocialMetrics{FriendCount: intPtr(40), BadgeCount: 500},
			wantFlags: 1,
			want:      model.StatusVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			social, calls := countingSocial(tt.metrics)
			d := Evaluate(testNow, Input{
				Profile:   model.Profile{UserID: 1, Username: tt.username, Created: old},
				Groups:    groupsN(tt.groups),
				Blacklist: p.PrimaryBlacklist(),
			}, social, p)

			if *calls != 1 {
				t.Errorf("social вызван %d раз, ожидался 1", *calls)
			}
			if len(d.RedFlags) != tt.wantFlags {
				t.Errorf("RedFlags = %v, ожидалось %d", d.RedFlags, tt.wantFlags)
			}
			if d.Status != tt.want {
				t.Errorf("Status = %s, ожидался %s", d.Status, tt.want)
			}
		})
	}
}

// TestEvaluate_UsernameFlagFirst — флаг логина идёт перед social-флагами.
func TestEvaluate_UsernameFlagFirst(t *testing.T) {
	p := testParams(t)
	social, _ := countingSocial(SocialMetrics{BadgeCount: 500})

	d := Evaluate(testNow, Input{
		Profile:   model.Profile{UserID: 1, Username: "Tommy98765", Created: createdDaysAgo(400)},
		Groups:    groupsN(13),
		Blacklist: p.PrimaryBlacklist(),
	}, social, p)

	want := []string{"Username looks spammy (4+ digits).", "Could not verify friend count."}
	if diff := cmp.Diff(want, d.RedFlags); diff != "" {
		t.Errorf("RedFlags (-want +got):\n%s", diff)
	}
	if d.Status != model.StatusDismissed {
		t.Errorf("Status = %s, ожидался DISMISSED", d.Status)
	}
}
