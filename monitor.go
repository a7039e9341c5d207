package framemonitor

// DefaultMaxGap is the largest forward identifier jump still reported as
// missing frames. Larger jumps are treated as a source restart.
const DefaultMaxGap uint64 = 100000

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	// Verbosity selects when Detailed decisions are produced
	Verbosity Verbosity
	// MaxGap bounds the forward jump reported as a gap. Zero disables the
	// bound; backward jumps always resynchronize.
	MaxGap uint64
	// OnNotice receives gap and resync notices. May be nil.
	OnNotice func(Notice)
}

// DefaultMonitorConfig returns OnAnomaly verbosity with DefaultMaxGap.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Verbosity: VerbosityOnAnomaly,
		MaxGap:    DefaultMaxGap,
	}
}

// State is the continuity state carried between events. The identifier and
// timestamp halves are valid or invalid together.
type State struct {
	LastID        uint64
	LastIDValid   bool
	LastTime      float64
	LastTimeValid bool
}

// Monitor tracks frame continuity and cadence for one identifier sequence.
//
// A Monitor is not safe for concurrent use. Each physical stream needs its
// own Monitor and calls must arrive in frame arrival order.
type Monitor struct {
	cfg   MonitorConfig
	state State
}

// NewMonitor creates a monitor with invalid state.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// Config returns the monitor configuration.
func (m *Monitor) Config() MonitorConfig { return m.cfg }

// State returns a copy of the continuity state.
func (m *Monitor) State() State { return m.state }

// Restore replaces the continuity state.
func (m *Monitor) Restore(s State) { m.state = s }

// Reset invalidates the continuity state, as after a lost identifier.
func (m *Monitor) Reset() { m.state = State{} }

// Process assesses one frame-arrival event and updates the state for the
// next call. It never fails: unreadable fields degrade the report and force
// a Detailed decision.
//
// Steps:
//  1. AlwaysShow verbosity forces Detailed.
//  2. An unreadable identifier forces Detailed and invalidates the state.
//  3. A non-consecutive identifier emits a notice (gap or resync).
//  4. FPS is computed from the previous timestamp unless a gap or resync
//     happened; a non-positive interval forces Detailed.
//  5. An unreadable or non-Complete status forces Detailed.
func (m *Monitor) Process(ev FrameEvent) Decision {
	var (
		reasons Reason
		rep     Report
	)
	if m.cfg.Verbosity == VerbosityAlwaysShow {
		reasons |= ReasonAlwaysShow
	}

	f := ev.Frame

	id, err := f.FrameID()
	if err != nil {
		reasons |= ReasonIDUnreadable
		m.state = State{}
	} else {
		rep.ID, rep.IDValid = id, true

		discontinuous := false
		if m.state.LastIDValid && id != m.state.LastID+1 {
			discontinuous = true
			m.notify(m.classifyJump(m.state.LastID, id))
		}

		m.state.LastID, m.state.LastIDValid = id, true

		t := ev.Timestamp
		if m.state.LastTimeValid && !discontinuous {
			dt := t - m.state.LastTime
			if dt > 0 {
				rep.FPS, rep.FPSValid = 1.0/dt, true
			} else {
				reasons |= ReasonTimingAnomaly
			}
		}
		m.state.LastTime, m.state.LastTimeValid = t, true
	}

	status, err := f.ReceiveStatus()
	if err != nil {
		reasons |= ReasonStatusUnreadable
	} else {
		rep.Status, rep.StatusValid = status, true
		if status != StatusComplete {
			reasons |= ReasonNotComplete
		}
	}

	if reasons == 0 {
		return Decision{Kind: Heartbeat, Report: rep}
	}

	if w, err := f.ImageWidth(); err == nil {
		rep.Width, rep.WidthValid = w, true
	}
	if h, err := f.ImageHeight(); err == nil {
		rep.Height, rep.HeightValid = h, true
	}
	if p, err := f.PixelFormat(); err == nil {
		rep.Format, rep.FormatValid = p, true
	}

	return Decision{Kind: Detailed, Report: rep, Reasons: reasons}
}

// classifyJump turns a non-consecutive identifier pair into a notice.
// Backward jumps and jumps beyond MaxGap would yield a meaningless unsigned
// difference, so they are reported as a resync instead.
func (m *Monitor) classifyJump(prev, id uint64) Notice {
	if id <= prev {
		return Notice{Kind: NoticeResync, PrevID: prev, ID: id}
	}
	missing := id - prev - 1
	if m.cfg.MaxGap > 0 && missing > m.cfg.MaxGap {
		return Notice{Kind: NoticeResync, PrevID: prev, ID: id}
	}
	return Notice{Kind: NoticeMissingFrames, Missing: missing, PrevID: prev, ID: id}
}

func (m *Monitor) notify(n Notice) {
	if m.cfg.OnNotice != nil {
		m.cfg.OnNotice(n)
	}
}
