package rvmachine

import "sync"

// Sim is a minimal Machine implementation backed by a flat byte arena and a
// per-page attribute map. It does not decode or execute RISC-V
// instructions — the real interpreter that does is explicitly out of
// scope for this module (spec.md §1) — but it honors the same
// ReadAt/WriteAt/PageAttr/Run contract, which is all this module's own
// unit tests need to drive the ELF loader, stack builder, fork/scheduler
// and syscall dispatch logic end-to-end.
type Sim struct {
	mu    sync.Mutex
	regs  Registers
	arena []byte
	attrs map[uint64]PageAttr

	stopped bool
	queue   []func(Machine) // pending "ecall" callbacks for Run to dispatch
}

// NewSim returns a Sim with a zeroed arena of the given size. Every page
// defaults to no permissions, matching a freshly mapped guest address
// space before the ELF loader assigns attributes.
func NewSim(arenaSize uint64) *Sim {
	return &Sim{
		arena: make([]byte, arenaSize),
		attrs: make(map[uint64]PageAttr),
	}
}

func (s *Sim) Regs() *Registers { return &s.regs }

func (s *Sim) checkRange(addr, length uint64, needWrite bool) error {
	for p := Page(addr); p < addr+length; p += PageSize {
		attr := s.attrs[p]
		if !attr.Read || (needWrite && !attr.Write) {
			return &FaultError{Addr: max64(addr, p)}
		}
	}
	return nil
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func (s *Sim) ReadAt(addr uint64, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(addr, uint64(len(buf)), false); err != nil {
		return err
	}
	copy(buf, s.arena[addr:addr+uint64(len(buf))])
	return nil
}

func (s *Sim) WriteAt(addr uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(addr, uint64(len(data)), true); err != nil {
		return err
	}
	copy(s.arena[addr:addr+uint64(len(data))], data)
	return nil
}

func (s *Sim) Memset(addr uint64, val byte, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkRange(addr, length, true); err != nil {
		return err
	}
	region := s.arena[addr : addr+length]
	for i := range region {
		region[i] = val
	}
	return nil
}

func (s *Sim) SetPageAttr(addr, length uint64, attr PageAttr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := Page(addr); p < addr+length; p += PageSize {
		s.attrs[p] = attr
	}
}

func (s *Sim) PageAttrAt(addr uint64) PageAttr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attrs[Page(addr)]
}

// QueueECall schedules a synthetic ecall to be dispatched on the next Run
// call, simulating the guest executing an `ecall` instruction. Tests use
// this to drive the syscall dispatch/execution-loop logic without a real
// decoder.
func (s *Sim) QueueECall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, nil)
}

func (s *Sim) Run(maxInstructions uint64, onECALL func(Machine)) (StopReason, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return StopHalted, nil
	}
	hasWork := len(s.queue) > 0
	if hasWork {
		s.queue = s.queue[1:]
	}
	s.mu.Unlock()

	if hasWork {
		onECALL(s)
		return StopECALL, nil
	}
	return StopInstructionLimit, nil
}

func (s *Sim) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// Arena exposes the raw backing store for tests that want to assert on
// exact bytes without going through ReadAt's permission checks.
func (s *Sim) Arena() []byte { return s.arena }
