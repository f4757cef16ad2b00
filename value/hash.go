// Copyright 2026 The Neutrino Authors
// This file is part of Neutrino.
//
// Neutrino is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Neutrino is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Neutrino. If not, see <http://www.gnu.org/licenses/>.

package value

import "github.com/holiman/uint256"

// HashSource mixes new entropy into a wide accumulator and derives
// stable 32-bit identity hashes from it. The 256-bit mixing state keeps
// a long-lived process from cycling back to a previously issued hash.
type HashSource struct {
	acc uint256.Int
}

// NewHashSource seeds the accumulator from a 64-bit seed (typically
// runtime.Config.RandomSeed or a reading from the system RNG).
func NewHashSource(seed uint64) *HashSource {
	hs := &HashSource{}
	hs.acc.SetUint64(seed | 1)
	return hs
}

var mixConstant = uint256.NewInt(0x9E3779B97F4A7C15)

// Next mixes in an arbitrary 64-bit word (an object's allocation
// address, a counter, whatever the caller has on hand for entropy) and
// returns a HashCode value derived from the resulting accumulator.
func (hs *HashSource) Next(mix uint64) Value {
	var tmp uint256.Int
	tmp.SetUint64(mix)
	hs.acc.Add(&hs.acc, &tmp)
	hs.acc.Mul(&hs.acc, mixConstant)

	words := hs.acc.Bytes32()
	var folded uint32
	for i := 0; i < 32; i += 4 {
		folded ^= uint32(words[i])<<24 | uint32(words[i+1])<<16 | uint32(words[i+2])<<8 | uint32(words[i+3])
	}
	return NewHashCode(folded)
}
