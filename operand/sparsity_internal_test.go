package operand

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/mat"
)

var _ = Describe("condense", func() {
	It("should give every block exactly n slots", func() {
		filter := mat.FromRows([][]int64{
			{10, 20},
			{11, 21},
			{12, 22},
			{13, 23},
			{14, 24},
			{15, 25},
			{16, 26},
			{17, 27},
		})
		mask := mat.FromRows([][]int64{
			{0, 1},
			{1, 1},
			{0, 0},
			{0, 0},
			{1, 0},
			{0, 0},
			{1, 1},
			{0, 1},
		})

		out := condense(filter, mask, 2, 4)

		Expect(out.Equal(mat.FromRows([][]int64{
			{11, 20},
			{mat.Null, 21},
			{14, 26},
			{16, 27},
		}))).To(BeTrue())
	})

	It("should drop trailing rows without weights", func() {
		filter := mat.FromRows([][]int64{{10}, {11}, {12}, {13}})
		mask := mat.FromRows([][]int64{{1}, {0}, {0}, {0}})

		out := condense(filter, mask, 2, 4)

		Expect(out.Equal(mat.FromRows([][]int64{{10}}))).To(BeTrue())
	})

	It("should panic when a block keeps more than n weights", func() {
		filter := mat.FromRows([][]int64{{10, 20}, {11, 21}, {12, 22}, {13, 23}})
		mask := mat.FromRows([][]int64{{1, 1}, {1, 0}, {1, 0}, {0, 0}})

		Expect(func() { condense(filter, mask, 2, 4) }).
			To(PanicWith(ContainSubstring("excess non-zero entries")))
	})
})
