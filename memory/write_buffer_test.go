package memory_test

import (
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/memory"
)

var _ = Describe("WriteBuffer", func() {
	cfg := memory.WriteBufferConfig{
		TotalSizeBytes:   8,
		WordSize:         1,
		ActiveBufFrac:    0.5,
		BackingBandwidth: 2,
	}

	demand := mat.FromRows([][]int64{
		{0, 1, 2, 3},
		{4, 5, 6, 7},
		{8, 9, 10, 11},
	})

	It("should drain while the array keeps writing", func() {
		buf := memory.NewWriteBuffer(cfg, memory.NewWritePort())

		Expect(buf.ServiceWrites(demand, []int64{0, 1, 2})).
			To(Equal([]int64{0, 1, 2}))
		Expect(buf.FreeSpace()).To(Equal(int64(3)))

		buf.EmptyAllBuffers(2)

		Expect(buf.FreeSpace()).To(Equal(int64(8)))
		Expect(buf.NumAccesses()).To(Equal(int64(12)))

		trace := buf.TraceMatrix()
		Expect(trace.Equal(mat.FromRows([][]int64{
			{1, 0, 1},
			{2, 2, 3},
			{2, 4, mat.Null},
			{3, 5, 6},
			{2, 7, 8},
			{3, 9, 10},
			{4, 11, mat.Null},
		}))).To(BeTrue())

		start, stop := buf.ExternalAccessStartStop()
		Expect(start).To(Equal(int64(1)))
		Expect(stop).To(Equal(int64(4)))
	})

	It("should stall when the buffer fills before the drain ends", func() {
		buf := memory.NewWriteBuffer(cfg, memory.NewFixedLatencyPort(10))
		rows := mat.VStack(demand, mat.FromRows([][]int64{
			{12, mat.Null, mat.Null, mat.Null},
		}))

		Expect(buf.ServiceWrites(rows, []int64{0, 1, 2, 3})).
			To(Equal([]int64{0, 1, 12, 13}))
	})

	It("should skip null slots", func() {
		buf := memory.NewWriteBuffer(cfg, memory.NewWritePort())
		buf.ServiceWrites(mat.FromRows([][]int64{{mat.Null, 5}}), []int64{0})

		Expect(buf.FreeSpace()).To(Equal(int64(7)))
	})

	It("should panic when the trace is read before any drain", func() {
		buf := memory.NewWriteBuffer(cfg, memory.NewWritePort())

		Expect(buf.TraceMatrix().IsEmpty()).To(BeTrue())
		Expect(func() { buf.NumAccesses() }).To(Panic())
	})

	It("should forget everything on reset", func() {
		buf := memory.NewWriteBuffer(cfg, memory.NewWritePort())
		buf.ServiceWrites(demand, []int64{0, 1, 2})
		buf.EmptyAllBuffers(2)

		buf.Reset()

		Expect(buf.FreeSpace()).To(Equal(int64(8)))
		Expect(buf.TraceMatrix().IsEmpty()).To(BeTrue())
	})

	It("should send the drained lines to the port", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		defer mockCtrl.Finish()

		port := NewMockWritePort(mockCtrl)
		port.EXPECT().
			ServiceWrites(gomock.Any(), []int64{5}).
			DoAndReturn(func(reqs mat.Matrix, cycles []int64) []int64 {
				Expect(reqs.Row(0)).To(Equal([]int64{1, mat.Null}))
				return []int64{9}
			})

		buf := memory.NewWriteBuffer(cfg, port)
		buf.ServiceWrites(line(1), []int64{0})
		buf.EmptyAllBuffers(5)

		Expect(buf.TraceMatrix().Row(0)).To(Equal([]int64{9, 1, mat.Null}))
	})
})
