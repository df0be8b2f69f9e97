package inject

// BootstrapState records whether a one-shot bootstrap step has run.
type BootstrapState int

const (
	NotStarted BootstrapState = iota
	Completed
)

func (s BootstrapState) String() string {
	if s == Completed {
		return "completed"
	}
	return "not started"
}

// Bootstrap guards a step that must run at most once per process. Hold one
// in whatever owns the process; a fresh value starts over.
type Bootstrap struct {
	state BootstrapState
}

// State returns the current state.
func (b *Bootstrap) State() BootstrapState { return b.state }

// Run calls fn the first time it is called and reports whether it did. The
// bootstrap counts as completed even if fn fails; failures are not retried.
func (b *Bootstrap) Run(fn func() error) (bool, error) {
	if b.state == Completed {
		return false, nil
	}
	b.state = Completed
	return true, fn()
}
