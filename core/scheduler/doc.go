// Package scheduler builds the cost-minimisation model for a set of home
// storage devices under a time-of-use tariff with net metering, solves it and
// extracts per-device charge/discharge schedules.
//
// A Scheduler is Built by New and becomes Solved after the first call to
// Solve. Each solve fully replaces the previous solution; a non-optimal
// outcome leaves NaN for every variable.
package scheduler
