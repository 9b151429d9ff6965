package evio

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Node", func() {
	It("should compute sizes of nested containers", func() {
		leaf := NewLeafSegment(3, DataUint32, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		trigger := NewBank(TagBuiltTriggerRun, 2, leaf)
		event := NewBank(0xFF50, 1, trigger)

		Expect(leaf.Header().TotalBytes).To(Equal(12))
		Expect(trigger.Header().TotalBytes).To(Equal(20))
		Expect(event.Header().TotalBytes).To(Equal(28))
		Expect(trigger.Header().Kind()).To(Equal(KindSegment))
		Expect(event.Header().Kind()).To(Equal(KindBank))
		Expect(leaf.Header().Kind()).To(Equal(KindLeaf))
	})

	It("should pad leaf data", func() {
		leaf := NewLeafBank(1, 0, DataUchar8, []byte{1, 2, 3, 4, 5})

		Expect(leaf.Data()).To(HaveLen(8))
		Expect(leaf.Header().Padding).To(Equal(uint8(3)))
		Expect(leaf.Header().TotalBytes).To(Equal(16))
	})

	It("should give children by index", func() {
		a := NewLeafSegment(1, DataUint32, nil)
		b := NewLeafSegment(2, DataUint32, nil)
		bank := NewBank(5, 0, a, b)

		child, err := bank.ChildAt(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(child.Header().Tag).To(Equal(uint16(2)))
	})

	It("should report out of range access", func() {
		bank := NewBank(5, 0, NewLeafSegment(1, DataUint32, nil))

		_, err := bank.ChildAt(1)
		var ie *IndexError
		Expect(err).To(BeAssignableToTypeOf(ie))
		Expect(err.(*IndexError).Count).To(Equal(1))

		_, err = bank.ChildAt(-1)
		Expect(err).To(HaveOccurred())
	})

	It("should panic when children mix structures", func() {
		Expect(func() {
			NewBank(1, 0,
				NewLeafSegment(1, DataUint32, nil),
				NewLeafBank(2, 0, DataUint32, nil))
		}).To(Panic())
	})

	It("should panic when a leaf has a container type", func() {
		Expect(func() { NewLeafBank(1, 0, DataBank, nil) }).To(Panic())
	})

	It("should recognize trigger tags", func() {
		Expect(IsBuiltTrigger(0xFF1F)).To(BeFalse())
		Expect(IsBuiltTrigger(0xFF20)).To(BeTrue())
		Expect(IsBuiltTrigger(0xFF27)).To(BeTrue())
		Expect(IsBuiltTrigger(0xFF28)).To(BeFalse())
		Expect(IsRawTrigger(0xFF11)).To(BeTrue())
		Expect(IsControl(TagEnd)).To(BeTrue())
	})
})
