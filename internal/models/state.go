package models

// DashboardState is everything the position reconciler owns.
type DashboardState struct {
	ActiveToken *ActiveToken         `json:"activeToken"`
	Stats       TokenMarketStats     `json:"tokenStats"`
	Positions   map[string]*Position `json:"positions"` // keyed by wallet address
	Portfolio   PortfolioStats       `json:"portfolioStats"`
	Activity    []ActivityEntry      `json:"recentActivity"` // newest first
}

// NewDashboardState returns an empty state.
func NewDashboardState() *DashboardState {
	return &DashboardState{Positions: make(map[string]*Position)}
}

// Clone deep-copies the state.
func (s *DashboardState) Clone() *DashboardState {
	if s == nil {
		return nil
	}
	c := *s
	if s.ActiveToken != nil {
		t := *s.ActiveToken
		c.ActiveToken = &t
	}
	c.Stats.RecentTrades = append([]TokenTrade(nil), s.Stats.RecentTrades...)
	c.Positions = make(map[string]*Position, len(s.Positions))
	for k, p := range s.Positions {
		c.Positions[k] = p.Clone()
	}
	c.Activity = append([]ActivityEntry(nil), s.Activity...)
	return &c
}
