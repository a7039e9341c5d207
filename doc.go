// Package framemonitor watches the frame stream of a camera acquisition layer
// for continuity and cadence problems.
//
// Each frame handed over by the acquisition layer carries an identifier, a
// completion status, dimensions and a pixel format. A Monitor turns every
// frame into a Decision: a terse Heartbeat when nothing is wrong, or a
// Detailed report when a field could not be read, the frame is not complete,
// the clock misbehaved, or the monitor is configured to always show details.
// Gaps in the identifier sequence are reported out of band as a Notice before
// the decision for the frame that revealed them.
//
// # Quick Start
//
//	src, err := mocksource.New(mocksource.Config{FPS: 30, Width: 640, Height: 480})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	obs := framemonitor.NewObserver(
//	    framemonitor.DefaultMonitorConfig(),
//	    framemonitor.NewMonotonicClock(),
//	    src,
//	    framemonitor.WithSinks(framemonitor.NewConsoleSink(os.Stdout)),
//	)
//
//	if err := src.Start(ctx, obs.FrameReceived); err != nil {
//	    log.Fatal(err)
//	}
//	defer src.Stop()
//
// Console output for a healthy stream with one dropped frame:
//
//	.........
//	1 missing frame detected
//	..........
//
// # Continuity Rules
//
//   - Consecutive identifiers (n, n+1) are continuous.
//   - A forward jump n → n+k+1 reports k missing frames and suppresses the
//     FPS computation for that frame only.
//   - A backward jump, or a forward jump larger than MonitorConfig.MaxGap,
//     is a resync: tracking restarts at the new identifier.
//   - An unreadable identifier invalidates the state; the next readable
//     identifier starts a fresh sequence without a gap notice.
//
// # Frame Rate
//
// FPS is 1/dt between the arrival timestamps of two consecutive frames. The
// timestamp comes from a Clock read by the Observer, never by the Monitor, so
// tests can drive the monitor with synthetic time. A non-positive dt forces a
// Detailed report with the FPS shown as "?".
//
// # Buffer Lifetime
//
// Observer.FrameReceived always returns the frame to the acquisition layer
// through Requeuer.QueueFrame, whatever the decision, and even for nil
// frames.
//
// # Thread Safety
//
// Monitor is not safe for concurrent use. Observer serializes calls into its
// monitor, so a vendor callback may invoke FrameReceived from any thread; one
// Observer must still only ever see one identifier sequence.
package framemonitor
