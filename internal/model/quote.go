// Package model defines the record types shared by the fetch and store layers.
package model

import "time"

// Quote is one day's US 10-year treasury yield candle. The fields mirror the
// columns of the persisted output: date, open, close, high, low, change,
// change_rate.
type Quote struct {
	Date       time.Time // UTC midnight of the trading day
	Open       float64
	Close      float64
	High       float64
	Low        float64
	Change     float64
	ChangeRate float64
}
