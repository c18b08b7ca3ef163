package management

// holdGate releases the subprocess hold once it is both waiting and
// allowed to proceed, in whichever order the two arrive.
type holdGate struct {
	waiting          bool
	releaseRequested bool
}

// onHold records that the subprocess is waiting. It reports whether a
// release must be sent now.
func (g *holdGate) onHold() bool {
	g.waiting = true
	return g.fire()
}

// requestRelease allows the subprocess to proceed. It reports whether a
// release must be sent now.
func (g *holdGate) requestRelease() bool {
	g.releaseRequested = true
	return g.fire()
}

// hold re-arms the gate for the next episode. waiting is left alone.
func (g *holdGate) hold() {
	g.releaseRequested = false
}

func (g *holdGate) reset() {
	*g = holdGate{}
}

func (g *holdGate) fire() bool {
	if g.waiting && g.releaseRequested {
		g.waiting = false
		return true
	}
	return false
}
