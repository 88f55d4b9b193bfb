package sim

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/postalsys/muti-sim/internal/dtn"
	"github.com/postalsys/muti-sim/internal/stats"
)

// Summary is a point-in-time overview of a run.
type Summary struct {
	Tick        uint64       `json:"tick"`
	Peers       int          `json:"peers"`
	Edges       int          `json:"edges"`
	Online      int          `json:"online"`
	Queued      int          `json:"queued"`
	InFlight    int          `json:"in_flight"`
	Backprops   int          `json:"pending_backprops"`
	Events      int          `json:"events"`
	Interfaces  int          `json:"interfaces"`
	Stats       *stats.Stats `json:"stats"`
	Rates       stats.Rates  `json:"rates"`
	DutyCycle   bool         `json:"duty_cycle"`
	DutyPercent float64      `json:"duty_percent,omitempty"`
}

// Summary returns an overview of the run so far.
func (s *Simulation) Summary() Summary {
	st := s.stats.Clone()
	sum := Summary{
		Tick:       s.tick,
		Peers:      s.mesh.PeerCount(),
		Edges:      s.mesh.EdgeCount(),
		Online:     len(s.schedule.OnlinePeers()),
		Queued:     len(s.outbox),
		InFlight:   len(s.inFlight),
		Backprops:  len(s.backprops),
		Events:     s.log.Len(),
		Interfaces: len(s.protocol.Membership().Interfaces()),
		Stats:      st,
		Rates:      st.Rates(),
		DutyCycle:  s.schedule.DutyCycle(),
	}
	if calc := s.schedule.Calculator(); calc != nil {
		sum.DutyPercent = calc.GetConfig().DutyPercentage()
	}
	return sum
}

func count(n uint64) string {
	return humanize.Comma(int64(n))
}

func percent(r float64) string {
	return humanize.FormatFloat("#,###.#", r*100) + "%"
}

// String renders the summary as an aligned text report.
func (sum Summary) String() string {
	var b strings.Builder
	st := sum.Stats
	r := sum.Rates

	fmt.Fprintf(&b, "tick %s  peers %d  edges %d  online %d\n",
		count(sum.Tick), sum.Peers, sum.Edges, sum.Online)
	if sum.DutyCycle {
		fmt.Fprintf(&b, "duty cycle %.1f%%\n", sum.DutyPercent)
	}

	fmt.Fprintf(&b, "\nmessages\n")
	fmt.Fprintf(&b, "  sent       %12s\n", count(st.MessagesSent))
	fmt.Fprintf(&b, "  delivered  %12s  (%s)\n", count(st.MessagesDelivered), percent(r.DeliveryRate))
	fmt.Fprintf(&b, "  dropped    %12s  (%s)\n", count(st.MessagesDropped), percent(r.DropRate))
	for _, reason := range dtn.DropReasons() {
		if n := st.Dropped(reason); n > 0 {
			fmt.Fprintf(&b, "    %-18s %s\n", reason, count(n))
		}
	}
	fmt.Fprintf(&b, "  pending    %12s  (queued %d, in flight %d)\n", count(st.Pending()), sum.Queued, sum.InFlight)
	fmt.Fprintf(&b, "  relays     %12s\n", count(st.Relays))
	fmt.Fprintf(&b, "  direct/relayed deliveries  %s / %s\n", count(st.DirectDeliveries), count(st.RelayedDeliveries))
	fmt.Fprintf(&b, "  avg latency %.2f ticks, avg hops %.2f\n", r.AverageLatency, r.AverageHops)

	fmt.Fprintf(&b, "\nback-propagation\n")
	fmt.Fprintf(&b, "  completed %s, timed out %s, pending %d (%s), avg %.2f ticks\n",
		count(st.BackpropsCompleted), count(st.BackpropsTimedOut), sum.Backprops,
		percent(r.BackpropSuccessRate), r.AverageBackpropLatency)

	fmt.Fprintf(&b, "\npresence\n")
	fmt.Fprintf(&b, "  wake %s, sleep %s, transitions %s\n",
		count(st.WakeEvents), count(st.SleepEvents), count(st.PowerTransitions))

	if st.InvitesCreated > 0 {
		fmt.Fprintf(&b, "\ninvites\n")
		fmt.Fprintf(&b, "  created %s, accepted %s, failed %s (%s success), interfaces %d\n",
			count(st.InvitesCreated), count(st.InvitesAccepted), count(st.InvitesFailed),
			percent(r.InviteSuccessRate), sum.Interfaces)
		fmt.Fprintf(&b, "  kem   encaps %s, decaps %s, failures %s (%s)  avg %.0f/%.0f us\n",
			count(st.KEMEncapsulations), count(st.KEMDecapsulations), count(st.KEMFailures),
			percent(r.KEMFailureRate), r.AverageEncapLatencyUs, r.AverageDecapLatencyUs)
		fmt.Fprintf(&b, "  sig   created %s, verified %s, failures %s (%s)  avg %.0f/%.0f us\n",
			count(st.PQSignaturesCreated), count(st.PQSignaturesVerified), count(st.PQSignatureFailures),
			percent(r.SignatureFailureRate), r.AverageSignLatencyUs, r.AverageVerifyLatencyUs)
	}

	fmt.Fprintf(&b, "\nevents %s\n", count(uint64(sum.Events)))
	return b.String()
}
