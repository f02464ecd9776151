// Package sched implements the cooperative userspace thread scheduler
// (spec component C7): a fixed set of virtual-thread slots multiplexed on
// the single host execution thread, with futex wait/wake and
// quantum-based preemption at clock_gettime.
//
// Grounded on spec.md §4.7's create/schedule/exit protocol.
package sched

import "github.com/friscy-go/friscy/internal/rvmachine"

// MaxThreads is the fixed number of virtual-thread slots, per spec.md §4.7.
const MaxThreads = 8

// Quantum is the syscall budget a running slot gets before quantum-based
// preemption switches to another runnable slot (spec.md §4.7).
const Quantum = 50000

// VThread is one virtual thread's saved/live state.
type VThread struct {
	Active  bool
	TID     int32
	Regs    rvmachine.Registers
	Waiting bool
	FutexAddr uint64

	ClearChildTID uint64

	Budget int
}

// Scheduler owns the fixed slot array and tracks which slot is current.
// Invariant (spec.md §4.7's Data Model): the current slot's registers live
// in the guest machine; every other active slot carries its own saved
// copy. Every method that can change which slot is current takes the
// live rvmachine.Machine so it can save the outgoing slot and load the
// incoming one.
type Scheduler struct {
	slots      [MaxThreads]VThread
	current    int
	nextTID    int32
}

// New returns a scheduler with slot 0 occupied by the main thread (TID 1).
func New() *Scheduler {
	s := &Scheduler{nextTID: 2}
	s.slots[0] = VThread{Active: true, TID: 1, Budget: Quantum}
	s.current = 0
	return s
}

// Current returns the slot index and TID of the running virtual thread.
func (s *Scheduler) Current() (idx int, tid int32) {
	return s.current, s.slots[s.current].TID
}

// CurrentSlot returns a pointer to the live slot for the running thread,
// so syscall handlers can read/mutate its registers in place.
func (s *Scheduler) CurrentSlot() *VThread { return &s.slots[s.current] }

// SetResult writes v into slot idx's a0. Used when a syscall's calling
// thread is no longer current by the time the syscall returns (it parked
// itself, or a newly cloned thread became current instead) — the result
// belongs in that thread's saved register copy, not in the live machine.
func (s *Scheduler) SetResult(idx int, v int64) {
	s.slots[idx].Regs.X[10] = uint64(v)
}

// SwitchTo saves the outgoing current slot's live registers out of m,
// makes idx the current slot, and loads its saved registers into m.
func (s *Scheduler) SwitchTo(m rvmachine.Machine, idx int) {
	s.slots[s.current].Regs = *m.Regs()
	s.current = idx
	*m.Regs() = s.slots[idx].Regs
}

// Clone creates a new thread slot per spec.md §4.7's Create step, makes
// it current, and switches m to its registers (sp=childStack, a0=0,
// tp=tls if requested) so execution continues as the child; the parent's
// saved a0 is set to the child TID. Returns the new TID. If no slot is
// free it still returns a fresh TID (the "stub" degrade case), but no slot
// backs it and the calling thread stays current.
func (s *Scheduler) Clone(m rvmachine.Machine, childStack, tls, childTidptr uint64, setTLS, clearChildTID bool) int32 {
	freeIdx := -1
	for i, slot := range s.slots {
		if !slot.Active {
			freeIdx = i
			break
		}
	}
	tid := s.nextTID
	s.nextTID++
	if freeIdx < 0 {
		return tid
	}

	parentRegs := *m.Regs()
	child := VThread{
		Active: true,
		TID:    tid,
		Regs:   parentRegs,
		Budget: Quantum,
	}
	child.Regs.X[2] = childStack // sp
	child.Regs.X[10] = 0         // clone() returns 0 to the child
	if setTLS {
		child.Regs.X[4] = tls // tp
	}
	if clearChildTID {
		child.ClearChildTID = childTidptr
	}
	s.slots[freeIdx] = child

	parentIdx := s.current
	s.SwitchTo(m, freeIdx) // make the child current and continue
	// the parent's clone() returns the child TID
	s.slots[parentIdx].Regs.X[10] = uint64(tid)
	return tid
}

// pickRunnable returns the index of a runnable (active, not waiting) slot
// other than exclude, or -1 if none exists.
func (s *Scheduler) pickRunnable(exclude int) int {
	for i := 0; i < MaxThreads; i++ {
		idx := (exclude + 1 + i) % MaxThreads
		if idx == exclude {
			continue
		}
		if s.slots[idx].Active && !s.slots[idx].Waiting {
			return idx
		}
	}
	return -1
}

// SwitchToRunnable switches the current slot to any other runnable slot,
// if one exists. Returns whether a switch happened.
func (s *Scheduler) SwitchToRunnable(m rvmachine.Machine) bool {
	idx := s.pickRunnable(s.current)
	if idx < 0 {
		return false
	}
	s.SwitchTo(m, idx)
	return true
}

// FutexWait implements spec.md §4.7's futex(WAIT): if *addrVal still equals
// expected, park the current slot waiting on addr and switch away. If no
// other slot is runnable, the caller must fall back to returning 0
// immediately (breaking a spin loop) rather than deadlocking.
func (s *Scheduler) FutexWait(m rvmachine.Machine, addr uint64, current, expected uint32) (parked bool, switched bool) {
	if current != expected {
		return false, false
	}
	slot := &s.slots[s.current]
	slot.Waiting = true
	slot.FutexAddr = addr
	if s.SwitchToRunnable(m) {
		return true, true
	}
	// No other runnable slot: break the spin by un-parking immediately.
	slot.Waiting = false
	return true, false
}

// FutexWake implements spec.md §4.7's futex(WAKE): clears Waiting on up to
// maxWake slots parked on addr, returns the count woken. Waking a slot
// doesn't switch to it; it only becomes eligible for a future switch.
func (s *Scheduler) FutexWake(addr uint64, maxWake int) int {
	woken := 0
	for i := range s.slots {
		if woken >= maxWake {
			break
		}
		slot := &s.slots[i]
		if slot.Active && slot.Waiting && slot.FutexAddr == addr {
			slot.Waiting = false
			woken++
		}
	}
	return woken
}

// Yield implements nanosleep/sched_yield's cooperation point: switch to
// another runnable slot if one exists. Returns whether it switched.
func (s *Scheduler) Yield(m rvmachine.Machine) bool { return s.SwitchToRunnable(m) }

// Tick implements quantum-based preemption (spec.md §4.7): call on every
// time-related syscall (clock_gettime). Decrements the current slot's
// budget and switches away if it hits zero, refilling the new slot's
// budget is not needed since budgets persist across switches.
func (s *Scheduler) Tick(m rvmachine.Machine) (switched bool) {
	slot := &s.slots[s.current]
	slot.Budget--
	if slot.Budget > 0 {
		return false
	}
	slot.Budget = Quantum
	return s.SwitchToRunnable(m)
}

// Exit implements a non-main thread's exit (spec.md §4.7's Exit step).
// mainExit is returned true when the exiting slot was slot 0 (the main
// thread) or no other slot was runnable, meaning the caller must fall
// through to process-wide exit handling.
func (s *Scheduler) Exit(m rvmachine.Machine, wake func(addr uint64, n int)) (mainExit bool) {
	slot := &s.slots[s.current]
	if slot.ClearChildTID != 0 {
		_ = m.WriteAt(slot.ClearChildTID, make([]byte, 4))
		wake(slot.ClearChildTID, 1)
	}
	wasMain := s.current == 0
	slot.Active = false
	if wasMain {
		return true
	}
	if !s.SwitchToRunnable(m) {
		return true
	}
	return false
}
