package redisstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/partnerforge/progression/pkg/model"
)

const (
	keyPrefix      = "progression:"
	accountsSetKey = keyPrefix + "accounts"
)

// Per-seller keys carry the seller id as a hash tag so scripts and transactions
// touching them stay on one cluster slot.
func makeAccountKey(sellerID string) string {
	return fmt.Sprintf("%saccount:{%s}", keyPrefix, sellerID)
}

func makeDedupeKey(sellerID string) string {
	return fmt.Sprintf("%sdedupe:{%s}", keyPrefix, sellerID)
}

func makeEventsKey(sellerID string) string {
	return fmt.Sprintf("%sevents:{%s}", keyPrefix, sellerID)
}

func makeEventSeqKey(sellerID string) string {
	return fmt.Sprintf("%seventseq:{%s}", keyPrefix, sellerID)
}

// eventJSON strips the sequence prefix from an events sorted set member.
// Members written without one are returned unchanged.
func eventJSON(member string) []byte {
	if strings.HasPrefix(member, "{") {
		return []byte(member)
	}
	_, data, _ := strings.Cut(member, "|")
	return []byte(data)
}

// dedupeField is the field of the dedupe hash reserving (event_type, dedupe_key).
func dedupeField(t model.EventType, key string) string {
	return string(t) + "|" + key
}

// completedLessons extracts lesson ids from the fields of a dedupe hash.
func completedLessons(fields []string) map[string]bool {
	completed := make(map[string]bool)
	for _, f := range fields {
		t, key, ok := strings.Cut(f, "|")
		if !ok {
			continue
		}
		if model.EventType(t).IsMilestone() {
			completed[key] = true
		}
	}
	return completed
}

func eventScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// encodeAccount flattens an account into hash fields.
func encodeAccount(acc *model.Account) []interface{} {
	return []interface{}{
		"business_name", acc.BusinessName,
		"current_xp", acc.CurrentXP,
		"season_xp", acc.SeasonXP,
		"weekly_xp", acc.WeeklyXP,
		"week_start", acc.WeekStart.Unix(),
		"current_rank", acc.CurrentRank,
		"highest_rank", acc.HighestRank,
		"login_streak", acc.LoginStreak,
		"last_login_date", acc.LastLoginDate,
		"commission_rate", formatRate(acc.CommissionRate),
		"referral_code", acc.ReferralCode,
		"created_at", acc.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at", acc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeAccount rebuilds an account from HGETALL output.
func decodeAccount(sellerID string, fields map[string]string) (*model.Account, error) {
	acc := &model.Account{
		ID:            sellerID,
		BusinessName:  fields["business_name"],
		CurrentRank:   fields["current_rank"],
		HighestRank:   fields["highest_rank"],
		LastLoginDate: fields["last_login_date"],
		ReferralCode:  fields["referral_code"],
	}

	var err error
	if acc.CurrentXP, err = parseInt(fields, "current_xp"); err != nil {
		return nil, err
	}
	if acc.SeasonXP, err = parseInt(fields, "season_xp"); err != nil {
		return nil, err
	}
	if acc.WeeklyXP, err = parseInt(fields, "weekly_xp"); err != nil {
		return nil, err
	}
	weekStart, err := parseInt(fields, "week_start")
	if err != nil {
		return nil, err
	}
	acc.WeekStart = time.Unix(weekStart, 0).UTC()

	streak, err := parseInt(fields, "login_streak")
	if err != nil {
		return nil, err
	}
	acc.LoginStreak = int(streak)

	if v := fields["commission_rate"]; v != "" {
		if acc.CommissionRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid commission_rate %q: %w", v, err)
		}
	}
	if acc.CreatedAt, err = parseTime(fields, "created_at"); err != nil {
		return nil, err
	}
	if acc.UpdatedAt, err = parseTime(fields, "updated_at"); err != nil {
		return nil, err
	}
	return acc, nil
}

func parseInt(fields map[string]string, name string) (int64, error) {
	v := fields[name]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return n, nil
}

func parseTime(fields map[string]string, name string) (time.Time, error) {
	v := fields[name]
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return t, nil
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}
