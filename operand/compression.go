package operand

import (
	"fmt"
	"math"

	"github.com/sarchlab/systolica/config"
	"github.com/sarchlab/systolica/mat"
)

// Storage is the size, in words, of a filter before and after compression.
type Storage struct {
	Original float64
	New      float64
	Metadata float64
}

// CSRStorage returns the storage of the mask's non-zero weights in the
// compressed sparse row format.
func CSRStorage(mask mat.Matrix) Storage {
	rows, cols := mask.Shape()
	nnz := countNonZero(mask)
	ptrs := float64(rows + 1)

	return Storage{
		Original: float64(rows * cols),
		New:      2*float64(nnz) + ptrs,
		Metadata: float64(nnz) + ptrs,
	}
}

// CSCStorage returns the storage of the mask's non-zero weights in the
// compressed sparse column format.
func CSCStorage(mask mat.Matrix) Storage {
	rows, cols := mask.Shape()
	nnz := countNonZero(mask)
	ptrs := float64(cols + 1)

	return Storage{
		Original: float64(rows * cols),
		New:      2*float64(nnz) + ptrs,
		Metadata: float64(nnz) + ptrs,
	}
}

// EllpackBlockStorage returns the storage in the blocked ELLPACK format. Each
// condensed weight carries ceil(log2(blockSize)) bits of index, packed into
// 32-bit words.
func EllpackBlockStorage(mask, condensed mat.Matrix, blockSize int) Storage {
	rows, cols := mask.Shape()
	n := float64(condensed.Len())

	bits := 0.0
	if blockSize > 1 {
		bits = math.Ceil(math.Log2(float64(blockSize)))
	}

	metadata := n * bits / 32

	return Storage{
		Original: float64(rows * cols),
		New:      n + metadata,
		Metadata: metadata,
	}
}

// FilterStorage returns the storage of the filter of the layer in the given
// representation.
func (b *Builder) FilterStorage(rep config.Representation) (Storage, error) {
	if err := b.check(); err != nil {
		return Storage{}, err
	}

	switch rep {
	case config.CSR:
		return CSRStorage(b.mask), nil
	case config.CSC:
		return CSCStorage(b.mask), nil
	case config.EllpackBlock:
		return EllpackBlockStorage(b.mask, b.filter, b.blockSize()), nil
	default:
		return Storage{}, fmt.Errorf("unknown sparse representation %q", rep)
	}
}

func (b *Builder) blockSize() int {
	if b.sparsity.OptimizedMapping {
		return b.sparsity.BlockSize
	}

	return b.layer.SparsityM
}

func countNonZero(m mat.Matrix) int {
	n := 0
	for _, v := range m.Data() {
		if v != 0 {
			n++
		}
	}

	return n
}
