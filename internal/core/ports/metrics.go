package ports

import "time"

// MenuMetrics receives domain measurements from the core services
type MenuMetrics interface {
	ObserveGeneration(mode, outcome string, duration time.Duration)
	SlotUnderfilled(slot string)
	CriticalFactEmitted(breachType, severity string)
	BreachPublished(outcome string)
}
