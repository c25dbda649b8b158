// Package live implements the duplex audio/video tutoring session.
//
// A Session bridges a client media capture leg (microphone samples and
// camera frames) to an upstream native-audio model connection, and turns
// model audio into a gapless playback schedule the client can follow.
//
// # Architecture
//
//   - Session: single run loop owning every state transition and all
//     playback bookkeeping; producers only submit commands
//   - Scheduler: places model audio chunks at max(now, cursor) so chunks
//     queue back to back, and tracks them until completion or flush
//   - audio producer: frames captured samples, downsamples to the model
//     input rate, forwards them upstream and reports capture energy
//   - video producer: forwards the most recent camera frame on a fixed
//     cadence, independent of the audio path
//
// # State Machine
//
//	IDLE → CONNECTING → AWAITING_MEDIA → STREAMING ⇄ SPEAKING
//	                                         ↑           │
//	                                         └─ INTERRUPTED
//
// Any state can reach CLOSING → CLOSED through Close. Setup or transport
// failures park the session in FAILED; Close still releases resources.
//
// # Usage
//
//	sess := live.NewSession(live.DefaultConfig(), dialer, media)
//	if err := sess.Start(ctx); err != nil {
//	    // session is FAILED; nothing is left running
//	}
//	for event := range sess.Events() {
//	    switch e := event.(type) {
//	    case *live.AudioOutEvent:
//	        schedule(e.PCM, e.StartAt)
//	    case *live.AudioResetEvent:
//	        dropScheduled()
//	    }
//	}
package live
