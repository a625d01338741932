package mat

// Skew shifts column c down by c rows so that lane c receives its stream c
// cycles after lane 0. An R x C input becomes (R+C-1) x C, with Null in every
// slot that is not covered by the input.
func Skew(in Matrix) Matrix {
	rows, cols := in.Shape()
	if cols == 0 {
		return New(rows, 0)
	}

	out := New(rows+cols-1, cols)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			out.Set(r+c, c, in.At(r, c))
		}
	}

	return out
}

// SkewRowSparsity is the skew used by the weight-stationary array with the
// optimized sparse mapping. The input holds two array tiles side by side
// (2*arrRow columns, padded with Null if narrower). Every row is split into
// blocks of blockSize elements and each block is repeated blockSize/2 times;
// the repeated block j of input row k lands on output row k+j.
func SkewRowSparsity(in Matrix, arrRow, blockSize int) Matrix {
	const numTiles = 2

	if blockSize < numTiles {
		panic("sparsity block size must be at least 2")
	}

	width := arrRow * numTiles
	if width%blockSize != 0 {
		width += blockSize - width%blockSize
	}

	in = in.PadTo(in.Rows(), width)

	numBlocks := width / blockSize
	repeat := blockSize / numTiles
	numRepeated := numBlocks * repeat
	outRows := in.Rows() + arrRow - 1

	out := New(outRows, numRepeated*blockSize)
	for i := 0; i < outRows; i++ {
		for j := 0; j < numRepeated; j++ {
			src := i - j
			if src < 0 || src >= in.Rows() {
				continue
			}

			blockStart := (j / repeat) * blockSize
			row := in.Row(src)
			copy(out.Row(i)[j*blockSize:(j+1)*blockSize], row[blockStart:blockStart+blockSize])
		}
	}

	return out
}

// DiagonalFlatten walks the matrix anti-diagonal by anti-diagonal, from the
// bottom-left element of each diagonal to its top-right element, and returns
// the elements as a single row.
func DiagonalFlatten(in Matrix) Matrix {
	rows, cols := in.Shape()
	out := New(1, rows*cols)

	idx := 0
	for diag := 0; diag < rows+cols-1; diag++ {
		maxRow := min(diag, rows-1)
		minRow := max(0, diag-cols+1)

		for r := maxRow; r >= minRow; r-- {
			out.data[idx] = in.At(r, diag-r)
			idx++
		}
	}

	return out
}
