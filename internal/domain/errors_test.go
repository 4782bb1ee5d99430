package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflict(CodeAlreadyInactive, "ya estaba inactivo"))

	assert.True(t, errors.Is(err, ErrAlreadyInactive))
	assert.False(t, errors.Is(err, ErrAlreadyResolved))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, CodeAlreadyInactive, CodeOf(err))
}

func TestKindOfPlainErrorIsStorage(t *testing.T) {
	assert.Equal(t, KindStorage, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestUserMessageHidesCause(t *testing.T) {
	err := Storage(errors.New("pq: connection refused"))

	assert.NotContains(t, UserMessage(err), "connection refused")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "error interno, intenta más tarde", UserMessage(errors.New("raw")))
}

func TestEnforcementMessages(t *testing.T) {
	err := Enforcement(CodeSubjectNotPresent, errors.New("10007"))

	assert.Equal(t, KindEnforcement, err.Kind)
	assert.True(t, errors.Is(err, ErrSubjectNotPresent))
	assert.Equal(t, "el usuario ya no está en el servidor", UserMessage(err))
}

func TestLoaOverlapIsInclusive(t *testing.T) {
	d := func(s string) time.Time {
		v, _ := time.Parse("2006-01-02", s)
		return v
	}
	l := Loa{StartDate: d("2026-02-01"), EndDate: d("2026-02-10")}

	assert.True(t, l.Overlaps(d("2026-02-05"), d("2026-02-15")))
	assert.True(t, l.Overlaps(d("2026-02-10"), d("2026-02-12")))
	assert.False(t, l.Overlaps(d("2026-02-11"), d("2026-02-20")))
	assert.Equal(t, 9, l.Days())
}

func TestParsePunishmentType(t *testing.T) {
	pt, ok := ParsePunishmentType(" Verbal_Warn ")
	assert.True(t, ok)
	assert.Equal(t, VerbalWarn, pt)
	assert.Equal(t, "verbal warn", pt.Label())

	_, ok = ParsePunishmentType("mute")
	assert.False(t, ok)
}
