package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubjectAge(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	birth := func(at time.Time) Subject { return Subject{FechaNacimiento: &at} }

	cases := []struct {
		name  string
		birth time.Time
		now   time.Time
		want  int
	}{
		{"birthday in leap birth year", date(2000, time.March, 1), date(2023, time.March, 1), 23},
		{"day before birthday", date(2000, time.March, 1), date(2023, time.February, 28), 22},
		{"birthday on leap now year", date(2001, time.March, 1), date(2024, time.March, 1), 23},
		{"leap day birth before march", date(2004, time.February, 29), date(2023, time.February, 28), 18},
		{"leap day birth in march", date(2004, time.February, 29), date(2023, time.March, 1), 19},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, birth(tc.birth).Age(tc.now), tc.name)
	}

	assert.Equal(t, -1, Subject{}.Age(time.Now()))
}
