// Copyright 2024 pykello
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compute

import (
	"encoding/binary"
	"math/bits"

	"github.com/pykello/pgaccel/pkg/common"
)

// The filter kernels are specialized along five axes: lane type (signed
// 1/2/4/8-byte for raw columns, unsigned 1/2-byte for dict indices),
// primary operator, optional fused operator, output mode, and wide vs
// scalar loop. The first three are type parameters so each instantiation
// compiles to a branch-free inner loop; the output mode picks one of
// three kernel functions; wide vs scalar picks the loop shape.

type lane interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type cmpOp[T lane] interface {
	eval(a, b T) bool
}

type opEq[T lane] struct{}

func (opEq[T]) eval(a, b T) bool { return a == b }

type opNe[T lane] struct{}

func (opNe[T]) eval(a, b T) bool { return a != b }

type opGt[T lane] struct{}

func (opGt[T]) eval(a, b T) bool { return a > b }

type opGte[T lane] struct{}

func (opGte[T]) eval(a, b T) bool { return a >= b }

type opLt[T lane] struct{}

func (opLt[T]) eval(a, b T) bool { return a < b }

type opLte[T lane] struct{}

func (opLte[T]) eval(a, b T) bool { return a <= b }

// opPass is the fused-operator slot when no secondary bound is present.
type opPass[T lane] struct{}

func (opPass[T]) eval(a, b T) bool { return true }

// Scalar kernels. These also process the tail of the wide kernels, so
// their bitmap semantics must match bit for bit.

func scanCount[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T) int {
	var p P
	var f F
	count := 0
	for i := range values {
		if p.eval(values[i], value) && f.eval(values[i], fusedVal) {
			count++
		}
	}
	return count
}

func scanSet[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T, bitmap []byte) int {
	var p P
	var f F
	count := 0
	for i := range values {
		if p.eval(values[i], value) && f.eval(values[i], fusedVal) {
			bitmap[i>>3] |= 1 << (i & 7)
			count++
		} else {
			bitmap[i>>3] &= ^(uint8(1) << (i & 7))
		}
	}
	return count
}

func scanAnd[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T, bitmap []byte) int {
	var p P
	var f F
	count := 0
	for i := range values {
		if p.eval(values[i], value) && f.eval(values[i], fusedVal) {
			if bitmap[i>>3]&(1<<(i&7)) != 0 {
				count++
			}
		} else {
			bitmap[i>>3] &= ^(uint8(1) << (i & 7))
		}
	}
	return count
}

// Wide kernels process 64 lanes per iteration and accumulate the lane
// results into a 64-bit mask, mirroring 512-bit mask-register semantics.
// Mask bit j of block b corresponds to row b*64+j; masks are stored
// little-endian so the bitmap layout is identical to the scalar path on
// any host.

const laneBlock = 64

func blockCount[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T) int {
	var p P
	var f F
	blocks := len(values) / laneBlock
	count := 0
	for b := 0; b < blocks; b++ {
		base := b * laneBlock
		var mask uint64
		for j := 0; j < laneBlock; j++ {
			v := values[base+j]
			if p.eval(v, value) && f.eval(v, fusedVal) {
				mask |= 1 << j
			}
		}
		count += bits.OnesCount64(mask)
	}
	count += scanCount[T, P, F](values[blocks*laneBlock:], value, fusedVal)
	return count
}

func blockSet[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T, bitmap []byte) int {
	var p P
	var f F
	blocks := len(values) / laneBlock
	count := 0
	for b := 0; b < blocks; b++ {
		base := b * laneBlock
		var mask uint64
		for j := 0; j < laneBlock; j++ {
			v := values[base+j]
			if p.eval(v, value) && f.eval(v, fusedVal) {
				mask |= 1 << j
			}
		}
		binary.LittleEndian.PutUint64(bitmap[b*8:], mask)
		count += bits.OnesCount64(mask)
	}
	processed := blocks * laneBlock
	count += scanSet[T, P, F](values[processed:], value, fusedVal, bitmap[processed/8:])
	return count
}

func blockAnd[T lane, P cmpOp[T], F cmpOp[T]](values []T, value, fusedVal T, bitmap []byte) int {
	var p P
	var f F
	blocks := len(values) / laneBlock
	count := 0
	for b := 0; b < blocks; b++ {
		base := b * laneBlock
		var mask uint64
		for j := 0; j < laneBlock; j++ {
			v := values[base+j]
			if p.eval(v, value) && f.eval(v, fusedVal) {
				mask |= 1 << j
			}
		}
		mask &= binary.LittleEndian.Uint64(bitmap[b*8:])
		binary.LittleEndian.PutUint64(bitmap[b*8:], mask)
		count += bits.OnesCount64(mask)
	}
	processed := blocks * laneBlock
	count += scanAnd[T, P, F](values[processed:], value, fusedVal, bitmap[processed/8:])
	return count
}

// rawKernel bundles the three output modes of one fully specialized
// kernel family.
type rawKernel[T lane] struct {
	count func(values []T, value, fusedVal T) int
	set   func(values []T, value, fusedVal T, bitmap []byte) int
	and   func(values []T, value, fusedVal T, bitmap []byte) int
}

func makeKernel[T lane, P cmpOp[T], F cmpOp[T]](wide bool) rawKernel[T] {
	if wide {
		return rawKernel[T]{
			count: blockCount[T, P, F],
			set:   blockSet[T, P, F],
			and:   blockAnd[T, P, F],
		}
	}
	return rawKernel[T]{
		count: scanCount[T, P, F],
		set:   scanSet[T, P, F],
		and:   scanAnd[T, P, F],
	}
}

func kernelWithFuse[T lane, F cmpOp[T]](op CompareOp, wide bool) (rawKernel[T], error) {
	switch op {
	case CmpEq:
		return makeKernel[T, opEq[T], F](wide), nil
	case CmpNe:
		return makeKernel[T, opNe[T], F](wide), nil
	case CmpGt:
		return makeKernel[T, opGt[T], F](wide), nil
	case CmpGte:
		return makeKernel[T, opGte[T], F](wide), nil
	case CmpLt:
		return makeKernel[T, opLt[T], F](wide), nil
	case CmpLte:
		return makeKernel[T, opLte[T], F](wide), nil
	}
	return rawKernel[T]{}, common.Invalidf("unsupported filter operator: %v", op)
}

// kernelFor resolves the (operator, fused operator, loop shape) axes to a
// fully instantiated kernel. Only < and <= may appear as the fused bound.
func kernelFor[T lane](op, fusedOp CompareOp, wide bool) (rawKernel[T], error) {
	switch fusedOp {
	case CmpNone:
		return kernelWithFuse[T, opPass[T]](op, wide)
	case CmpLt:
		return kernelWithFuse[T, opLt[T]](op, wide)
	case CmpLte:
		return kernelWithFuse[T, opLte[T]](op, wide)
	}
	return rawKernel[T]{}, common.Invalidf("unsupported fused operator: %v", fusedOp)
}
