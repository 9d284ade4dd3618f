package converters

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ToNullableText converts a string pointer to pgtype.Text
// Returns invalid Text if pointer is nil
func ToNullableText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

// FromNullableText converts pgtype.Text back to a string pointer
// Returns nil for invalid Text
func FromNullableText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// ToNullableBool converts a bool pointer to pgtype.Bool
// Returns invalid Bool if pointer is nil
func ToNullableBool(b *bool) pgtype.Bool {
	if b == nil {
		return pgtype.Bool{Valid: false}
	}
	return pgtype.Bool{Bool: *b, Valid: true}
}

// FromNullableBool converts pgtype.Bool back to a bool pointer
// Returns nil for invalid Bool
func FromNullableBool(b pgtype.Bool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// ToNullableTimestamptz converts a time pointer to pgtype.Timestamptz
// Returns invalid Timestamptz if pointer is nil
func ToNullableTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// FromNullableTimestamptz converts pgtype.Timestamptz back to a time pointer
// Returns nil for invalid Timestamptz
func FromNullableTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// ToNullableDate converts a time pointer to pgtype.Date
// Returns invalid Date if pointer is nil
func ToNullableDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

// FromNullableDate converts pgtype.Date back to a time pointer
// Returns nil for invalid Date
func FromNullableDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	v := d.Time
	return &v
}

// StringOrEmpty returns empty string if pointer is nil, otherwise returns the value
func StringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
