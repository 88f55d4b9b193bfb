package sim

import (
	"errors"
	"fmt"
	"slices"

	"github.com/postalsys/muti-sim/internal/dtn"
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/identity"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/routing"
)

// SendMessage submits a message from src to dst. The message waits in the
// sender's outbox and is admitted into the mesh on the first Step at which
// src can send. Only argument errors are returned; every other outcome is
// reported through the packet and the event log.
func (s *Simulation) SendMessage(src, dst identity.PeerID, payload []byte) (identity.PacketID, error) {
	if src == dst {
		return identity.PacketID{}, fmt.Errorf("%w: %s", ErrSelfSend, src)
	}
	if err := s.checkPeer(src); err != nil {
		return identity.PacketID{}, err
	}
	if err := s.checkPeer(dst); err != nil {
		return identity.PacketID{}, err
	}

	id := identity.PacketID{Source: src, Sequence: s.sequence[src]}
	s.sequence[src]++

	p := dtn.NewPacket(id, dst, len(payload), s.tick, s.cfg.Simulation.MessageTimeout)
	s.packets[id] = p
	s.stats.RecordSent(src)
	s.metrics.RecordSent()

	if limit := int(s.cfg.Constraints.MaxMessageSize); limit > 0 && p.Size > limit {
		s.drop(p, src, dtn.SizeExceeded)
		return id, nil
	}

	s.outbox = append(s.outbox, p)
	return id, nil
}

// drop resolves p as dropped at peer and releases it from its holder.
func (s *Simulation) drop(p *dtn.Packet, at identity.PeerID, reason dtn.DropReason) {
	holder := p.Holder
	if err := p.Drop(reason, s.tick); err != nil {
		return
	}
	s.buffers.Remove(holder, p.ID)
	s.stats.RecordDrop(at, reason)
	s.metrics.RecordDropped(reason.String())
	s.emit(eventlog.Event{
		Type:     eventlog.Dropped,
		Peer:     at,
		From:     p.Source,
		To:       p.Destination,
		PacketID: p.ID,
		Reason:   reason,
		Size:     p.Size,
		Hops:     p.Hops(),
	})
	s.logger.Debug("packet dropped",
		logging.KeyPacketID, p.ID,
		logging.KeyPeerID, at,
		logging.KeyReason, reason.String(),
		logging.KeyTick, s.tick)
}

// accept charges p to peer's bandwidth and buffer. The first failing cap
// decides the drop reason; bandwidth is checked before the buffer, and a
// rejected packet is charged nothing.
func (s *Simulation) accept(p *dtn.Packet, peer identity.PeerID) (dtn.DropReason, bool) {
	if !s.meter.Fits(peer, s.tick, p.Size) {
		return dtn.BandwidthExceeded, false
	}
	if err := s.buffers.Check(peer, p.Size); err != nil {
		if errors.Is(err, dtn.ErrBufferFull) {
			return dtn.BufferFull, false
		}
		return dtn.BufferOverflow, false
	}
	if err := s.meter.Allow(peer, s.tick, p.Size); err != nil {
		return dtn.BandwidthExceeded, false
	}
	if err := s.buffers.Admit(peer, p.ID, p.Size); err != nil {
		if errors.Is(err, dtn.ErrBufferFull) {
			return dtn.BufferFull, false
		}
		return dtn.BufferOverflow, false
	}
	return dtn.ReasonNone, true
}

// sweepExpired drops every unresolved packet whose deadline has passed.
func (s *Simulation) sweepExpired() {
	for _, p := range s.outbox {
		if p.Expired(s.tick) {
			s.drop(p, p.Holder, dtn.MessageTimeout)
		}
	}
	for _, p := range s.inFlight {
		if !p.Terminal() && p.Expired(s.tick) {
			s.drop(p, p.Holder, dtn.MessageTimeout)
		}
	}
	s.outbox = slices.DeleteFunc(s.outbox, (*dtn.Packet).Terminal)
	s.inFlight = slices.DeleteFunc(s.inFlight, (*dtn.Packet).Terminal)
}

// processOutbox admits queued packets whose sender can send. Senders that
// cannot send spend one retry per tick.
func (s *Simulation) processOutbox() {
	var waiting []*dtn.Packet
	for _, p := range s.outbox {
		if !s.schedule.CanSend(p.Source) {
			p.Retries++
			if p.Retries >= s.cfg.Simulation.MaxSenderRetries {
				s.drop(p, p.Source, dtn.SenderOffline)
				continue
			}
			waiting = append(waiting, p)
			continue
		}
		s.admit(p)
	}
	s.outbox = waiting
}

// admit routes p at its source and stores it there.
func (s *Simulation) admit(p *dtn.Packet) {
	route, err := s.routes.Lookup(p.Source, p.Destination)
	if err != nil {
		if errors.Is(err, routing.ErrNoRoute) {
			s.drop(p, p.Source, dtn.NoRoute)
			return
		}
		s.logger.Error("route lookup failed", logging.KeyPacketID, p.ID, logging.KeyError, err)
		s.drop(p, p.Source, dtn.NoRoute)
		return
	}
	if route.Hops() > s.cfg.Simulation.MaxHops {
		s.drop(p, p.Source, dtn.TtlExpired)
		return
	}
	if reason, ok := s.accept(p, p.Source); !ok {
		s.drop(p, p.Source, reason)
		return
	}
	if err := p.Route(route.Path); err != nil {
		s.logger.Error("route packet", logging.KeyPacketID, p.ID, logging.KeyError, err)
		return
	}

	s.inFlight = append(s.inFlight, p)
	s.emit(eventlog.Event{
		Type:     eventlog.Send,
		From:     p.Source,
		To:       p.Destination,
		PacketID: p.ID,
		Size:     p.Size,
		Hops:     route.Hops(),
	})
	s.logger.Debug("packet admitted",
		logging.KeyPacketID, p.ID,
		logging.KeyRoute, route.String(),
		logging.KeyTick, s.tick)
}

// advance moves every in-flight packet at most one hop, in admission
// order. A packet moves when its holder can send and the next hop can
// receive; otherwise it stays where it is.
func (s *Simulation) advance() {
	for _, p := range s.inFlight {
		if p.Terminal() || !s.schedule.CanSend(p.Holder) {
			continue
		}
		next, ok := p.NextHop()
		if !ok || !s.schedule.IsOnline(next) {
			continue
		}
		if reason, ok := s.accept(p, next); !ok {
			s.drop(p, next, reason)
			continue
		}

		prev, err := p.Advance()
		if err != nil {
			s.logger.Error("advance packet", logging.KeyPacketID, p.ID, logging.KeyError, err)
			continue
		}
		s.buffers.Remove(prev, p.ID)

		if p.AtDestination() {
			s.deliver(p, prev)
			continue
		}

		s.stats.RecordRelay(next)
		s.metrics.RecordRelay()
		s.emit(eventlog.Event{
			Type:     eventlog.Relay,
			From:     prev,
			Via:      next,
			To:       p.Destination,
			PacketID: p.ID,
			Size:     p.Size,
		})
	}
	s.inFlight = slices.DeleteFunc(s.inFlight, (*dtn.Packet).Terminal)
}

// deliver resolves p at its destination and starts its confirmation.
func (s *Simulation) deliver(p *dtn.Packet, via identity.PeerID) {
	s.buffers.Remove(p.Destination, p.ID)
	if err := p.Deliver(s.tick); err != nil {
		return
	}
	hops := p.Hops()
	s.stats.RecordDelivered(p.Destination, hops, p.Latency())
	s.metrics.RecordDelivered(hops, p.Latency())
	s.emit(eventlog.Event{
		Type:     eventlog.Delivered,
		From:     p.Source,
		Via:      via,
		To:       p.Destination,
		PacketID: p.ID,
		Size:     p.Size,
		Hops:     hops,
	})
	s.logger.Debug("packet delivered",
		logging.KeyPacketID, p.ID,
		logging.KeyHops, hops,
		logging.KeyTick, s.tick)

	if len(p.Path) > 2 {
		s.custody[p.ID] = slices.Clone(p.Path[1 : len(p.Path)-1])
	}
	s.backprops = append(s.backprops, &backprop{
		packet:    p.ID,
		path:      slices.Clone(p.Path),
		pos:       len(p.Path) - 1,
		delivered: s.tick,
	})
}

// propagate moves every confirmation one hop back along its path when the
// hop's sender can send and its receiver is online, as for packets.
// Confirmations start the tick after delivery.
func (s *Simulation) propagate() {
	timeout := s.cfg.Simulation.BackpropTimeout
	var active []*backprop
	for _, bp := range s.backprops {
		if s.tick > bp.delivered {
			from, to := bp.path[bp.pos], bp.path[bp.pos-1]
			if s.schedule.CanSend(from) && s.schedule.IsOnline(to) {
				bp.pos--
				s.emit(eventlog.Event{
					Type:     eventlog.BackProp,
					From:     from,
					To:       to,
					PacketID: bp.packet,
				})
			}
		}

		elapsed := s.tick - bp.delivered
		switch {
		case bp.pos == 0:
			s.stats.RecordBackprop(true, elapsed)
			s.metrics.RecordBackprop(true, elapsed)
			delete(s.custody, bp.packet)
		case timeout > 0 && elapsed >= timeout:
			s.stats.RecordBackprop(false, elapsed)
			s.metrics.RecordBackprop(false, elapsed)
			delete(s.custody, bp.packet)
			s.logger.Debug("backprop timed out",
				logging.KeyPacketID, bp.packet,
				logging.KeyTick, s.tick)
		default:
			active = append(active, bp)
		}
	}
	s.backprops = active
}
