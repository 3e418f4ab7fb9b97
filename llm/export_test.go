package llm

// SweepWindows exposes the window sweep to external tests.
var SweepWindows = (*HealthMonitor).sweepWindows
