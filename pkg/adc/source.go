package adc

// Emit hands one encoded conversion result to the unit that started the source.
// It never blocks. The return value is the yield hint produced by the
// registered callbacks and is meant to be honoured by the driver verbatim.
type Emit func(result []byte) (yield bool)

// Source is the acquisition hardware beneath a Continuous unit: it owns the
// sampling circuitry and calls emit from its own goroutine, which plays the
// role of interrupt context.
type Source interface {
	Caps() Caps
	Peripheral() *Peripheral

	// Start begins producing results in cfg.Format, in cfg.Patterns order.
	Start(cfg Config, emit Emit) error
	// Stop halts production. emit is not called after Stop returns.
	Stop() error
}

// OneShot is a synchronous single-sample reader on the same hardware.
type OneShot interface {
	ReadOneShot(unit UnitID, channel uint8, atten Atten) (int, error)
}
