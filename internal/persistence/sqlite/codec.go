package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/pocket-ledger/internal/persistence"
	"github.com/shopspring/decimal"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = time.RFC3339Nano
)

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: invalid date %q: %w", value, err)
	}
	return t, nil
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func parseNullDate(value sql.NullString) (*time.Time, error) {
	if !value.Valid {
		return nil, nil
	}
	t, err := parseDate(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: invalid timestamp %q: %w", value, err)
	}
	return t, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sqlite: invalid amount %q: %w", value, err)
	}
	return amount, nil
}

// encodeWeekdays stores ISO weekdays (Monday=1) as a bitmask with Monday in
// bit 0. A nil set is stored as NULL; an empty set as 0.
func encodeWeekdays(weekdays []int) (sql.NullInt64, error) {
	if weekdays == nil {
		return sql.NullInt64{}, nil
	}
	var mask int64
	for _, day := range weekdays {
		if day < 1 || day > 7 {
			return sql.NullInt64{}, fmt.Errorf("%w: weekday %d out of range", persistence.ErrConstraintViolation, day)
		}
		mask |= 1 << uint(day-1)
	}
	return sql.NullInt64{Int64: mask, Valid: true}, nil
}

func decodeWeekdays(mask sql.NullInt64) []int {
	if !mask.Valid {
		return nil
	}
	weekdays := make([]int, 0, 7)
	for day := 1; day <= 7; day++ {
		if mask.Int64&(1<<uint(day-1)) != 0 {
			weekdays = append(weekdays, day)
		}
	}
	return weekdays
}

func nullInt(value int) sql.NullInt64 {
	if value == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(value), Valid: true}
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
