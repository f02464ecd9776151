package launcher

import "github.com/friscy-go/friscy/internal/rvmachine"

// registerBlockSize is the encoded size of a rvmachine.Registers: 32 GPRs
// plus PC, 8 bytes each.
const registerBlockSize = (rvmachine.NumGPR + 1) * 8

func encodeRegisters(r *rvmachine.Registers) []byte {
	buf := make([]byte, registerBlockSize)
	for i, v := range r.X {
		putU64Le(buf[i*8:i*8+8], v)
	}
	putU64Le(buf[rvmachine.NumGPR*8:], r.PC)
	return buf
}

func decodeRegisters(buf []byte, r *rvmachine.Registers) {
	for i := range r.X {
		r.X[i] = getU64Le(buf[i*8 : i*8+8])
	}
	r.PC = getU64Le(buf[rvmachine.NumGPR*8:])
}

func putU64Le(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64Le(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
