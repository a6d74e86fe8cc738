package optimize

// None is an optimizer which computes initial value and exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() *None {
	return &None{BaseOptimizer{name: "none"}}
}

// Run computes the likelihood once.
func (n *None) Run(iterations int) {
	n.SaveStart()
	n.PrintHeader(n.parameters)
	n.PrintLine(n.parameters, n.l, 1)
	n.SaveCheckpoint(true)
	n.saveDeltaT()
}
