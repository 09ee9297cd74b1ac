package planner

// EnergyProfile maps hour of day (0-23) to a capacity weight in [0,1].
// Hours that are absent have zero capacity and are never scheduled. The
// scheduler only asks whether an hour is open: any positive weight opens it
// and the earliest open slot wins, so a 0.1 hour is taken before a 1.0 hour.
type EnergyProfile map[int]float64

// DefaultEnergyProfile opens 09:00-21:00, twelve hourly slots, with the
// late-morning and late-afternoon peaks students typically report.
func DefaultEnergyProfile() EnergyProfile {
	return EnergyProfile{
		9:  0.7,
		10: 0.8,
		11: 0.9,
		12: 0.7,
		13: 0.6,
		14: 0.7,
		15: 0.8,
		16: 0.9,
		17: 0.7,
		18: 0.6,
		19: 0.5,
		20: 0.4,
	}
}

// Weight returns the clamped capacity for hour.
func (p EnergyProfile) Weight(hour int) float64 {
	w, ok := p[hour]
	if !ok || w <= 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// OpenHours counts hours with non-zero capacity.
func (p EnergyProfile) OpenHours() int {
	n := 0
	for h := 0; h < 24; h++ {
		if p.Weight(h) > 0 {
			n++
		}
	}
	return n
}

func (p EnergyProfile) orDefault() EnergyProfile {
	if len(p) == 0 {
		return DefaultEnergyProfile()
	}
	return p
}
