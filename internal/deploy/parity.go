package deploy

import (
	"errors"

	"github.com/klauspost/reedsolomon"
)

// buildParityShards erasure-codes a set of aux-file byte blobs so a
// partially-corrupted transfer can be reconstructed from the surviving
// data and parity shards, rather than failing the whole deploy over one
// damaged file. Shards are padded to a common length, as reedsolomon
// requires equal-size inputs.
func buildParityShards(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) < 2 {
		return nil, errors.New("deploy: erasure coding needs at least 2 aux files")
	}

	maxLen := 0
	for _, d := range dataShards {
		if len(d) > maxLen {
			maxLen = len(d)
		}
	}

	parityCount := (len(dataShards) + 1) / 2
	shards := make([][]byte, len(dataShards)+parityCount)
	for i, d := range dataShards {
		padded := make([]byte, maxLen)
		copy(padded, d)
		shards[i] = padded
	}
	for i := len(dataShards); i < len(shards); i++ {
		shards[i] = make([]byte, maxLen)
	}

	enc, err := reedsolomon.New(len(dataShards), parityCount)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}
	return shards[len(dataShards):], nil
}
