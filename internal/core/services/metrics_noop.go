package services

import "time"

type noopMetrics struct{}

func (noopMetrics) ObserveGeneration(string, string, time.Duration) {}
func (noopMetrics) SlotUnderfilled(string)                          {}
func (noopMetrics) CriticalFactEmitted(string, string)              {}
func (noopMetrics) BreachPublished(string)                          {}
