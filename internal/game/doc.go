// Package game implements the betting state machine for a single table:
// hand lifecycle, legal actions, side pots and showdown settlement.
//
// A Table is a plain value with no locking. Callers that share a table
// between goroutines must serialise access, as the table session does.
package game
