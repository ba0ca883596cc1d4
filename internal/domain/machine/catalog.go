package machine

// MachineType is a purchasable machine model.
type MachineType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PriceXAF    int64  `json:"price_xaf"`
	DailyRateED int64  `json:"daily_rate_ed"`
}

var catalog = []MachineType{
	{ID: "starter", Name: "Starter Rig", PriceXAF: 5_000, DailyRateED: 50},
	{ID: "pro", Name: "Pro Rig", PriceXAF: 15_000, DailyRateED: 160},
	{ID: "elite", Name: "Elite Rig", PriceXAF: 50_000, DailyRateED: 550},
}

// Catalog lists every machine type on sale.
func Catalog() []MachineType {
	out := make([]MachineType, len(catalog))
	copy(out, catalog)
	return out
}

// LookupType finds a machine type by id.
func LookupType(id string) (MachineType, bool) {
	for _, t := range catalog {
		if t.ID == id {
			return t, true
		}
	}
	return MachineType{}, false
}
