package partition_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/nowtechnologies/flashconfig"
	"github.com/nowtechnologies/flashconfig/partition"
	"github.com/nowtechnologies/flashconfig/simflash"
)

type fakePlugin struct {
	pages    uint32
	initedAt uint32
	inited   bool
	done     bool
}

func (f *fakePlugin) PagesNeeded() uint32   { return f.pages }
func (f *fakePlugin) Init(basePage uint32)  { f.inited = true; f.initedAt = basePage }
func (f *fakePlugin) Done()                 { f.done = true }

var geometry = partition.Geometry{PageSizeBytes: 256, SectorSizePages: 16, FlashSizePages: 1024}

var _ = Describe("Partitioner", func() {

	It("should reject a flash size that is not a power of two", func() {
		_, err := partition.New(partition.Geometry{PageSizeBytes: 256, SectorSizePages: 16, FlashSizePages: 1000})
		Expect(err).To(HaveOccurred())
	})

	It("should reject a page size outside the supported range", func() {
		_, err := partition.New(partition.Geometry{PageSizeBytes: 128, SectorSizePages: 16, FlashSizePages: 1024})
		Expect(err).To(HaveOccurred())
	})

	It("should reject a plugin whose size is not a multiple of the sector size", func() {
		_, err := partition.New(geometry, &fakePlugin{pages: 17})
		Expect(err).To(HaveOccurred())
	})

	It("should reject plugins that together exceed the flash", func() {
		_, err := partition.New(geometry, &fakePlugin{pages: 512}, &fakePlugin{pages: 768})
		Expect(err).To(HaveOccurred())
	})

	It("should assign consecutive base pages in order", func() {
		p1 := &fakePlugin{pages: 256}
		p2 := &fakePlugin{pages: 512}
		p, err := partition.New(geometry, p1, p2)
		Expect(err).NotTo(HaveOccurred())

		p.Init()
		Expect(p1.initedAt).To(Equal(uint32(0)))
		Expect(p2.initedAt).To(Equal(uint32(256)))

		p.Done()
		Expect(p1.done).To(BeTrue())
		Expect(p2.done).To(BeTrue())
	})

	It("should lay out two independent config engines back to back on one flash", func() {
		flash := simflash.New(256, 4, 32, zerolog.Nop())

		settings, err := flashconfig.NewEngine(flash, flashconfig.EngineOptions{
			PagesNeeded: 16, Copies: flashconfig.Copy2, ReadAheadPages: 4,
			MaxItemCount: 8, InlineThreshold: 8, Logger: zerolog.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		calibration, err := flashconfig.NewEngine(flash, flashconfig.EngineOptions{
			PagesNeeded: 16, Copies: flashconfig.Copy1, ReadAheadPages: 4,
			MaxItemCount: 8, InlineThreshold: 8, Logger: zerolog.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		p, err := partition.New(
			partition.Geometry{PageSizeBytes: 256, SectorSizePages: 4, FlashSizePages: 32},
			settings, calibration,
		)
		Expect(err).NotTo(HaveOccurred())
		p.Init()
		defer p.Done()

		settings.AddConfig([]byte("s"))
		settings.Commit()
		calibration.AddConfig([]byte("c"))
		calibration.Commit()

		Expect(settings.GetConfig(0)).To(Equal([]byte("s")))
		Expect(calibration.GetConfig(0)).To(Equal([]byte("c")))
	})
})
