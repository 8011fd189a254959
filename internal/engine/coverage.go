package engine

import "github.com/jacobschulman/stonewatch/internal/domain/reservation"

// Scope is one (merchant, date, service, party size) combination of a scan.
type Scope struct {
	MerchantID string
	Date       string
	Service    string
	PartySize  int
}

// ScopeOf returns the scope a slot key belongs to.
func ScopeOf(k reservation.SlotKey) Scope {
	return Scope{MerchantID: k.MerchantID, Date: k.Date, Service: k.Service, PartySize: k.PartySize}
}

// Coverage is the set of scopes whose probes all succeeded in one run.
type Coverage map[Scope]struct{}

func (c Coverage) Add(s Scope) { c[s] = struct{}{} }

// Covers reports whether k's scope was fully probed.
func (c Coverage) Covers(k reservation.SlotKey) bool {
	_, ok := c[ScopeOf(k)]
	return ok
}
