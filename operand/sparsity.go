package operand

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/systolica/mat"
)

func denseMask(rows, cols int) mat.Matrix {
	m := mat.New(rows, cols)
	for i := range m.Data() {
		m.Data()[i] = 1
	}

	return m
}

// fixedMask keeps the first n weights of every block of m weights along the
// window, for every filter.
func fixedMask(rows, cols, n, m int) mat.Matrix {
	mask := mat.New(rows, cols)
	for r := 0; r < rows; r++ {
		v := int64(0)
		if r%m < n {
			v = 1
		}

		row := mask.Row(r)
		for c := range row {
			row[c] = v
		}
	}

	return mask
}

// randomMask draws an n in [1, blockSize/2] per filter and keeps the first n
// weights of every block.
func randomMask(rows, cols, blockSize int, seed int64) mat.Matrix {
	rng := rand.New(rand.NewSource(seed))
	mask := mat.New(rows, cols)

	for c := 0; c < cols; c++ {
		n := rng.Intn(blockSize/2) + 1
		for r := 0; r < rows; r++ {
			v := int64(0)
			if r%blockSize < n {
				v = 1
			}

			mask.Set(r, c, v)
		}
	}

	return mask
}

// condense packs the kept weights of every block of m rows into n slots.
// Trailing rows without any weight are dropped.
func condense(filter, mask mat.Matrix, n, m int) mat.Matrix {
	rows, cols := filter.Shape()
	numBlocks := (rows + m - 1) / m

	out := mat.New(numBlocks*n, cols)
	for c := 0; c < cols; c++ {
		for blk := 0; blk < numBlocks; blk++ {
			slot := 0

			for r := blk * m; r < min((blk+1)*m, rows); r++ {
				if mask.At(r, c) == 0 {
					continue
				}

				if slot >= n {
					panic(fmt.Sprintf(
						"excess non-zero entries in block %d of filter %d "+
							"with sparsity ratio %d:%d", blk, c, n, m))
				}

				out.Set(blk*n+slot, c, filter.At(r, c))
				slot++
			}
		}
	}

	last := out.Rows()
	for last > 0 && !out.RowHasRequest(last-1) {
		last--
	}

	return out.SliceRows(0, last)
}

// compressPairs pads the filter to a multiple of two blocks and compresses
// every pair of blocks into blockSize slots, blockSize/2 per block.
func compressPairs(filter, mask mat.Matrix, blockSize int) mat.Matrix {
	rows, cols := filter.Shape()
	pair := 2 * blockSize
	half := blockSize / 2

	padded := rows
	if padded%pair != 0 {
		padded += pair - padded%pair
	}

	out := mat.New(padded/2, cols)
	for c := 0; c < cols; c++ {
		for start := 0; start < padded; start += blockSize {
			dst := start / 2
			slot := 0

			for r := start; r < min(start+blockSize, rows) && slot < half; r++ {
				if mask.At(r, c) == 0 {
					continue
				}

				out.Set(dst+slot, c, filter.At(r, c))
				slot++
			}
		}
	}

	return out
}
