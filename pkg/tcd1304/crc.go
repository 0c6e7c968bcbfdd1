// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Littrow Instruments

package tcd1304

// crcTable holds the 256-entry lookup table for CRC-16-CCITT (polynomial
// 0x1021). Table-driven updates keep the per-byte cost flat, which matters
// when checksumming 7400-byte frames at readout rate.
var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// Checksum computes the CRC-16-CCITT checksum (initial value 0xFFFF) of data.
func Checksum(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc = (crc << 8) ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
