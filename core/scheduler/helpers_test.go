package scheduler

import "time"

var (
	testStart = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	testStep  = time.Hour
)
