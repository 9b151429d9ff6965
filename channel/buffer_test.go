package channel

import (
	"context"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Buffer", func() {
	var (
		mockCtrl *gomock.Controller
		buf      Buffer
		ctx      context.Context
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		buf = NewBuffer("Buf", 2)
		ctx = context.Background()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should push and pop in order", func() {
		r1, r2 := &Record{RecordID: 1}, &Record{RecordID: 2}

		Expect(buf.Capacity()).To(Equal(2))
		Expect(buf.Push(ctx, r1)).To(Succeed())
		Expect(buf.FillLevel()).To(Equal(50))
		Expect(buf.Push(ctx, r2)).To(Succeed())
		Expect(buf.FillLevel()).To(Equal(100))
		Expect(buf.TryPush(&Record{})).To(BeFalse())

		Expect(buf.Pop(ctx)).To(BeIdenticalTo(r1))
		Expect(buf.Size()).To(Equal(1))
		Expect(buf.Pop(ctx)).To(BeIdenticalTo(r2))
		Expect(buf.FillLevel()).To(Equal(0))

		_, ok := buf.TryPop()
		Expect(ok).To(BeFalse())
	})

	It("should block the producer while full", func() {
		Expect(buf.Push(ctx, &Record{})).To(Succeed())
		Expect(buf.Push(ctx, &Record{})).To(Succeed())

		pushed := make(chan error)
		go func() {
			pushed <- buf.Push(ctx, &Record{RecordID: 3})
		}()

		Consistently(pushed, 50*time.Millisecond).ShouldNot(Receive())

		_, err := buf.Pop(ctx)
		Expect(err).NotTo(HaveOccurred())
		Eventually(pushed).Should(Receive(BeNil()))
		Expect(buf.Size()).To(Equal(2))
	})

	It("should give up a blocked push when the context is done", func() {
		Expect(buf.Push(ctx, &Record{})).To(Succeed())
		Expect(buf.Push(ctx, &Record{})).To(Succeed())

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		Expect(buf.Push(cctx, &Record{})).To(MatchError(context.DeadlineExceeded))
	})

	It("should wake a blocked consumer on close", func() {
		popped := make(chan error)
		go func() {
			_, err := buf.Pop(ctx)
			popped <- err
		}()

		Consistently(popped, 20*time.Millisecond).ShouldNot(Receive())

		buf.Close()

		Eventually(popped).Should(Receive(MatchError(ErrClosed)))
	})

	It("should drain records left after close", func() {
		Expect(buf.Push(ctx, &Record{RecordID: 7})).To(Succeed())
		buf.Close()

		Expect(buf.Closed()).To(BeTrue())
		Expect(buf.Push(ctx, &Record{})).To(MatchError(ErrClosed))

		r, err := buf.Pop(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.RecordID).To(Equal(uint64(7)))

		_, err = buf.Pop(ctx)
		Expect(err).To(MatchError(ErrClosed))
	})

	It("should invoke hooks on push and pop", func() {
		hook := NewMockHook(mockCtrl)
		buf.AcceptHook(hook)
		r := &Record{}

		gomock.InOrder(
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: buf,
				Pos:    HookPosBufPush,
				Item:   r,
			}),
			hook.EXPECT().Func(hooking.HookCtx{
				Domain: buf,
				Pos:    HookPosBufPop,
				Item:   r,
			}),
		)

		Expect(buf.Push(ctx, r)).To(Succeed())
		_, err := buf.Pop(ctx)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should refuse bad names and capacities", func() {
		Expect(func() { NewBuffer("buf", 2) }).To(Panic())
		Expect(func() { NewBuffer("Buf", 0) }).To(Panic())
	})
})
