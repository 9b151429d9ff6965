package rocscan

import (
	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Step", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = DefaultConfig()
	})

	It("should start from the zero state", func() {
		state, result, err := Step(cfg, State{}, physics(3, 5))

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(OutcomeAccepted))
		Expect(result.EventIDs).To(Equal([]int{3, 5}))
		Expect(result.NewIDs).To(Equal([]int{3, 5}))
		Expect(state.IDs.Sorted()).To(Equal([]int{3, 5}))
		Expect(state.Events).To(Equal(1))
		Expect(state.SinceLastNew).To(Equal(0))
	})

	It("should skip small events", func() {
		event := physics(3)
		event.header.TotalBytes = 999

		state, result, err := Step(cfg, State{}, event)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(OutcomeSkipped))
		Expect(state.IDs.Len()).To(Equal(0))
		Expect(state.SinceLastNew).To(Equal(1))
	})

	It("should skip events with fewer than two children", func() {
		event := physics(3)
		event.children = event.children[:1]

		_, result, err := Step(cfg, State{}, event)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Outcome).To(Equal(OutcomeSkipped))
	})

	It("should accept exactly 1000 bytes", func() {
		event := physics(3)
		event.header.TotalBytes = 1000

		_, result, _ := Step(cfg, State{}, event)

		Expect(result.Outcome).To(Equal(OutcomeAccepted))
	})

	DescribeTable("trigger tag window",
		func(tag uint16, outcome Outcome) {
			_, result, err := Step(cfg, State{}, physicsWithTrigger(tag, 4))

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(outcome))
		},
		Entry("below the window", uint16(0xFF1F), OutcomeRejected),
		Entry("lower bound", uint16(0xFF20), OutcomeAccepted),
		Entry("inside", uint16(0xFF23), OutcomeAccepted),
		Entry("upper bound", uint16(0xFF27), OutcomeAccepted),
		Entry("above the window", uint16(0xFF28), OutcomeRejected),
		Entry("streaming sib", uint16(0xFF30), OutcomeRejected),
	)

	It("should reject a trigger that is not a bank of segments", func() {
		event := physics(4)
		event.children[0].header.DataType = evio.DataBank

		_, result, _ := Step(cfg, State{}, event)

		Expect(result.Outcome).To(Equal(OutcomeRejected))
	})

	It("should reject a trigger without the common segments", func() {
		event := physics()
		event.children[0].children = event.children[0].children[:1]

		_, result, _ := Step(cfg, State{}, event)

		Expect(result.Outcome).To(Equal(OutcomeRejected))
	})

	It("should drop ids above the noise ceiling", func() {
		state, result, err := Step(cfg, State{}, physics(1000, 1001, 4095))

		Expect(err).NotTo(HaveOccurred())
		Expect(result.EventIDs).To(Equal([]int{1000}))
		Expect(state.IDs.Sorted()).To(Equal([]int{1000}))
	})

	It("should follow a configured noise ceiling", func() {
		cfg.NoiseCeiling = 10

		state, _, _ := Step(cfg, State{}, physics(9, 10, 11))

		Expect(state.IDs.Sorted()).To(Equal([]int{9, 10}))
	})

	It("should count events without new ids", func() {
		state, _, _ := Step(cfg, State{}, physics(2))
		state, result, _ := Step(cfg, state, physics(2))

		Expect(result.Outcome).To(Equal(OutcomeAccepted))
		Expect(result.NewIDs).To(BeEmpty())
		Expect(state.SinceLastNew).To(Equal(1))

		state, _, _ = Step(cfg, state, control(evio.TagGo))
		Expect(state.SinceLastNew).To(Equal(2))

		state, _, _ = Step(cfg, state, physics(2, 8))
		Expect(state.SinceLastNew).To(Equal(0))
		Expect(state.Events).To(Equal(4))
	})

	It("should mark convergence when the window is reached", func() {
		cfg.ConvergenceWindow = 2

		state, _, _ := Step(cfg, State{}, physics(2))
		state, _, _ = Step(cfg, state, physics(2))
		Expect(state.Converged).To(BeFalse())

		state, _, _ = Step(cfg, state, physics(2))
		Expect(state.Converged).To(BeTrue())
		Expect(state.Done(cfg)).To(BeTrue())
	})

	It("should stop at the event limit", func() {
		cfg.MaxEvents = 2

		state, _, _ := Step(cfg, State{}, physics(2))
		Expect(state.Done(cfg)).To(BeFalse())
		Expect(state.Limited).To(BeFalse())

		state, _, _ = Step(cfg, state, physics(3))
		Expect(state.Done(cfg)).To(BeTrue())
		Expect(state.Converged).To(BeFalse())
		Expect(state.Limited).To(BeTrue())
	})
})

var _ = Describe("Config", func() {
	It("should carry the production defaults", func() {
		cfg := DefaultConfig()

		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.MinEventBytes).To(Equal(1000))
		Expect(cfg.TriggerTagMin).To(Equal(uint16(0xFF20)))
		Expect(cfg.TriggerTagMax).To(Equal(uint16(0xFF27)))
		Expect(cfg.NoiseCeiling).To(Equal(1000))
		Expect(cfg.ConvergenceWindow).To(Equal(1000))
	})

	It("should refuse an empty tag window", func() {
		cfg := DefaultConfig()
		cfg.TriggerTagMin = 0xFF28

		Expect(cfg.Validate()).To(HaveOccurred())
	})

	It("should refuse negative limits", func() {
		cfg := DefaultConfig()
		cfg.MaxEvents = -1

		Expect(cfg.Validate()).To(HaveOccurred())
	})
})
