package memory_test

import (
	"github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/systolica/mat"
	"github.com/sarchlab/systolica/memory"
)

const null = mat.Null

func line(addrs ...int64) mat.Matrix {
	return mat.FromRows([][]int64{addrs})
}

func sequence(from, to int64) mat.Matrix {
	row := make([]int64, 0, to-from)
	for a := from; a < to; a++ {
		row = append(row, a)
	}

	return line(row...)
}

var _ = Describe("ReadBuffer", func() {
	var (
		cfg memory.ReadBufferConfig
		buf *memory.ReadBuffer
	)

	BeforeEach(func() {
		cfg = memory.ReadBufferConfig{
			TotalSizeBytes:   8,
			WordSize:         1,
			ActiveBufFrac:    0.5,
			HitLatency:       1,
			BackingBandwidth: 2,
		}
		buf = memory.NewReadBuffer(cfg, memory.NewReadPort())
		buf.SetFetchMatrix(sequence(0, 12))
	})

	It("should split the buffer", func() {
		Expect(buf.ActiveSize()).To(Equal(int64(4)))
		Expect(buf.PrefetchSize()).To(Equal(int64(4)))
	})

	It("should reject an active fraction outside [0.5, 1)", func() {
		cfg.ActiveBufFrac = 0.4
		Expect(func() { memory.NewReadBuffer(cfg, memory.NewReadPort()) }).
			To(Panic())

		cfg.ActiveBufFrac = 1
		Expect(func() { memory.NewReadBuffer(cfg, memory.NewReadPort()) }).
			To(Panic())
	})

	It("should panic when served before the fetch matrix is set", func() {
		b := memory.NewReadBuffer(cfg, memory.NewReadPort())
		Expect(func() { b.ServiceReads(line(0), []int64{0}) }).To(Panic())
	})

	It("should fill the active buffer right before the first request", func() {
		out := buf.ServiceReads(line(0, 1), []int64{0})

		Expect(out).To(Equal([]int64{1}))
		Expect(buf.TraceMatrix().Equal(mat.FromRows([][]int64{
			{-2, 0, 1},
			{-1, 2, 3},
		}))).To(BeTrue())
		Expect(buf.NumAccesses()).To(Equal(int64(4)))
	})

	It("should serve hits after the hit latency", func() {
		buf.ServiceReads(line(0, 1), []int64{0})

		Expect(buf.ActiveBufferHit(3)).To(BeTrue())
		Expect(buf.ActiveBufferHit(4)).To(BeFalse())
		Expect(buf.ServiceReads(line(2, 3), []int64{1})).To(Equal([]int64{2}))
	})

	It("should prefetch on misses and stall when the data is late", func() {
		Expect(buf.ServiceReads(line(0, 1), []int64{0})).To(Equal([]int64{1}))
		Expect(buf.ServiceReads(line(4, 5), []int64{1})).To(Equal([]int64{2}))
		Expect(buf.ServiceReads(line(8, null), []int64{2})).To(Equal([]int64{5}))

		Expect(buf.NumAccesses()).To(Equal(int64(12)))
		start, stop := buf.ExternalAccessStartStop()
		Expect(start).To(Equal(int64(-2)))
		Expect(stop).To(Equal(int64(5)))
	})

	It("should wrap around the fetch matrix", func() {
		buf.ServiceReads(line(0, 1), []int64{0})
		buf.ServiceReads(line(4, 5), []int64{1})
		buf.ServiceReads(line(8, null), []int64{2})

		Expect(buf.ServiceReads(line(0, null), []int64{6})).
			To(Equal([]int64{8}))

		trace := buf.TraceMatrix()
		Expect(trace.Rows()).To(Equal(8))
		Expect(trace.Row(6)).To(Equal([]int64{7, 0, 1}))
		Expect(buf.NumAccesses()).To(Equal(int64(16)))
	})

	It("should give non-decreasing serviced cycles", func() {
		demand := mat.FromRows([][]int64{
			{0, 1}, {2, 3}, {4, 5}, {6, 7}, {8, 9}, {10, 11}, {0, 1},
		})
		cycles := []int64{0, 1, 2, 3, 4, 5, 6}

		out := buf.ServiceReads(demand, cycles)

		for i := 1; i < len(out); i++ {
			Expect(out[i]).To(BeNumerically(">=", out[i-1]))
		}
	})

	It("should give the same cycles after a reset", func() {
		demand := mat.FromRows([][]int64{{0, 1}, {6, 7}, {11, null}})
		cycles := []int64{0, 1, 2}
		first := buf.ServiceReads(demand, cycles)

		buf.Reset()
		buf.SetFetchMatrix(sequence(0, 12))

		Expect(buf.ServiceReads(demand, cycles)).To(Equal(first))
	})

	It("should panic on an address that is never fetched", func() {
		buf.ServiceReads(line(0), []int64{0})
		Expect(func() { buf.ServiceReads(line(100), []int64{1}) }).To(Panic())
	})

	It("should report every fill to the hooks", func() {
		hook := &recordingHook{}
		buf.AcceptHook(hook)

		buf.ServiceReads(line(0, 1), []int64{0})
		buf.ServiceReads(line(4, 5), []int64{1})

		Expect(hook.count(memory.HookPosBufferFill)).To(Equal(4))
	})

	Context("with a slow port", func() {
		var (
			mockCtrl *gomock.Controller
			port     *MockReadPort
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			port = NewMockReadPort(mockCtrl)
			port.EXPECT().Latency().Return(int64(3)).AnyTimes()
			port.EXPECT().
				ServiceReads(gomock.Any(), gomock.Any()).
				DoAndReturn(func(reqs mat.Matrix, cycles []int64) []int64 {
					out := make([]int64, len(cycles))
					for i, c := range cycles {
						out[i] = c + 3
					}
					return out
				}).
				AnyTimes()
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should charge the port latency to the first request", func() {
			b := memory.NewReadBuffer(cfg, port)
			b.SetFetchMatrix(sequence(0, 12))

			Expect(b.ServiceReads(line(0, 1), []int64{0})).To(Equal([]int64{3}))
		})
	})
})

var _ = Describe("EstimateBwReadBuffer", func() {
	var buf *memory.EstimateBwReadBuffer

	BeforeEach(func() {
		buf = memory.NewEstimateBwReadBuffer(memory.ReadBufferConfig{
			TotalSizeBytes:   200,
			WordSize:         1,
			ActiveBufFrac:    0.5,
			HitLatency:       1,
			BackingBandwidth: 2,
		}, memory.NewReadPort())
	})

	It("should serve every request after the hit latency", func() {
		demand := mat.FromRows([][]int64{{0, 1}, {2, null}, {0, 3}})

		Expect(buf.ServiceReads(demand, []int64{0, 1, 2})).
			To(Equal([]int64{1, 2, 3}))
	})

	It("should prefetch the unique addresses at the end", func() {
		demand := mat.FromRows([][]int64{{0, 1}, {2, null}, {0, 3}})
		buf.ServiceReads(demand, []int64{0, 1, 2})

		buf.CompleteAllPrefetches()

		Expect(buf.NumAccesses()).To(Equal(int64(4)))
		Expect(buf.TraceMatrix().Equal(mat.FromRows([][]int64{
			{-2, 0, 1},
			{-1, 2, 3},
		}))).To(BeTrue())

		start, stop := buf.ExternalAccessStartStop()
		Expect(start).To(Equal(int64(-2)))
		Expect(stop).To(Equal(int64(-1)))
	})

	It("should spread a prefetch over the time since the last one", func() {
		for c := int64(0); c < 60; c++ {
			buf.ServiceReads(line(2*c, 2*c+1), []int64{c})
		}

		buf.CompleteAllPrefetches()

		Expect(buf.NumAccesses()).To(Equal(int64(120)))
		Expect(buf.CurrentBandwidth()).To(Equal(1))
		Expect(buf.TraceMatrix().Rows()).To(Equal(50 + 51))
	})

	It("should panic when the trace is read before any prefetch", func() {
		Expect(func() { buf.NumAccesses() }).To(Panic())
	})
})
