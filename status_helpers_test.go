package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollTimeText_Zero(t *testing.T) {
	assert.Equal(t, "never", pollTimeText(time.Time{}))
}

func TestPollTimeText_NonZero(t *testing.T) {
	got := pollTimeText(time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC))
	assert.NotEqual(t, "never", got)
}

func TestOrNoneStr(t *testing.T) {
	assert.Equal(t, "(not set)", orNoneStr(""))
	assert.Equal(t, "value", orNoneStr("value"))
}
