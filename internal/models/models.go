// Package models provides domain models for the options lab.
package models

import (
	"sort"
	"time"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Series is an ascending-by-date sequence of candles. Gaps are allowed.
type Series []Candle

// Between returns the candles whose timestamp falls inside [from, to].
// A zero from or to leaves that side open. The returned slice shares
// storage with s.
func (s Series) Between(from, to time.Time) Series {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(s), func(i int) bool {
			return !s[i].Timestamp.Before(from)
		})
	}
	hi := len(s)
	if !to.IsZero() {
		hi = sort.Search(len(s), func(i int) bool {
			return s[i].Timestamp.After(to)
		})
	}
	if lo >= hi {
		return Series{}
	}
	return s[lo:hi]
}

// IndexOf returns the position of the candle stamped t, or -1.
func (s Series) IndexOf(t time.Time) int {
	i := sort.Search(len(s), func(i int) bool {
		return !s[i].Timestamp.Before(t)
	})
	if i < len(s) && s[i].Timestamp.Equal(t) {
		return i
	}
	return -1
}

// Closes returns the close prices of the series.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// IsSorted reports whether the series is ascending by timestamp.
func (s Series) IsSorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool {
		return s[i].Timestamp.Before(s[j].Timestamp)
	})
}
