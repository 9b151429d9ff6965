package naming

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Name", func() {
	It("should parse name", func() {
		name, err := Parse("Aggregator.Input[3]")
		Expect(err).NotTo(HaveOccurred())
		Expect(name.Tokens[0].ElemName).To(Equal("Aggregator"))
		Expect(name.Tokens[0].Index).To(BeEmpty())
		Expect(name.Tokens[1].ElemName).To(Equal("Input"))
		Expect(name.Tokens[1].Index).To(Equal([]int{3}))
	})

	It("should parse multi-dimensional index", func() {
		name, err := Parse("Vtp[0][1].Stream[2]")
		Expect(err).NotTo(HaveOccurred())
		Expect(name.Tokens[0].Index).To(Equal([]int{0, 1}))
	})

	It("should reject a non-integer index", func() {
		_, err := Parse("Input[a]")
		Expect(err).To(HaveOccurred())
	})

	It("should panic if the name is empty", func() {
		Expect(func() { MustBeValid("") }).To(Panic())
	})

	It("should panic if name includes underscore", func() {
		Expect(func() { MustBeValid("Input_0") }).To(Panic())
	})

	It("should panic if name includes dash", func() {
		Expect(func() { MustBeValid("Input-0") }).To(Panic())
	})

	It("should panic if name is not capitalized CamelCase", func() {
		Expect(func() { MustBeValid("input") }).To(Panic())
	})

	It("should have paired square brackets", func() {
		Expect(Validate("Input[0")).To(HaveOccurred())
		Expect(Validate("Input0]")).To(HaveOccurred())
	})

	It("should reject empty elements", func() {
		Expect(Validate("Aggregator..Input")).To(HaveOccurred())
	})

	It("should accept valid names", func() {
		Expect(Validate("Aggregator.Input[0].Buf")).To(Succeed())
	})

	It("should build names", func() {
		Expect(Build("", "Aggregator")).To(Equal("Aggregator"))
		Expect(Build("Aggregator", "Input")).To(Equal("Aggregator.Input"))
		Expect(BuildWithIndex("Aggregator", "Input", 2)).
			To(Equal("Aggregator.Input[2]"))
	})

	It("should validate on MakeNamedBase", func() {
		b := MakeNamedBase("Aggregator")
		Expect(b.Name()).To(Equal("Aggregator"))
		Expect(func() { MakeNamedBase("aggregator") }).To(Panic())
	})
})
