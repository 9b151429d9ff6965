package aggregator

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/config"
	"github.com/JeffersonLab/SRO-RTDP-sub001/datarecording"
	"github.com/JeffersonLab/SRO-RTDP-sub001/evio"
	"github.com/JeffersonLab/SRO-RTDP-sub001/fakeroc"
	"github.com/JeffersonLab/SRO-RTDP-sub001/monitoring"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Aggregator", func() {
	var (
		mockCtrl *gomock.Controller
		ctx      context.Context
		cancel   context.CancelFunc
		cfg      config.Config
		builder  Builder
		agg      *Aggregator
		runErr   chan error
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		ctx, cancel = context.WithCancel(context.Background())

		cfg = config.Default()
		cfg.Port = 0
		cfg.ExpectedSourceCount = 2
		cfg.ExperimentID = "test"

		builder = MakeBuilder().
			WithHost("127.0.0.1").
			WithLogger(log.New(GinkgoWriter, "", 0))
	})

	AfterEach(func() {
		cancel()
		mockCtrl.Finish()
	})

	run := func() {
		agg = builder.WithConfig(cfg).Build()
		runErr = make(chan error, 1)

		go func() {
			runErr <- agg.Run(ctx)
		}()

		Eventually(agg.Started()).Should(BeClosed())
	}

	roc := func(codaID int32) *fakeroc.Source {
		src := fakeroc.MakeBuilder().
			WithAddress(agg.Server().Addr().String()).
			WithCodaID(codaID).
			WithLogger(log.New(GinkgoWriter, "", 0)).
			Build("Roc")
		Expect(src.Connect(ctx)).To(Succeed())
		DeferCleanup(src.Close)

		return src
	}

	It("should hand the channels to the merger once all sources connect", func() {
		merger := NewMockMerger(mockCtrl)
		builder = builder.WithMerger(merger)

		merger.EXPECT().
			Merge(gomock.Any(), gomock.Len(2)).
			DoAndReturn(func(_ context.Context, channels []channel.Channel) error {
				Expect(channels[0].ID()).To(Equal(4))
				Expect(channels[1].ID()).To(Equal(1))
				return nil
			})

		run()
		roc(4)
		Eventually(agg.Server().Admitted).Should(Equal(1))
		roc(1)

		Eventually(runErr).Should(Receive(BeNil()))
		Expect(agg.Server().State()).To(Equal(admission.StateSaturated))
	})

	It("should never merge when the sources do not all arrive", func() {
		merger := NewMockMerger(mockCtrl)
		builder = builder.WithMerger(merger)
		cfg.AdmissionTimeout = 300 * time.Millisecond

		merger.EXPECT().Merge(gomock.Any(), gomock.Any()).Times(0)

		run()
		roc(4)

		var err error
		Eventually(runErr).Should(Receive(&err))

		var liveness *admission.LivenessError
		Expect(errors.As(err, &liveness)).To(BeTrue())
		Expect(liveness.Expected).To(Equal(2))
		Expect(liveness.Admitted).To(Equal(1))
	})

	It("should return the merge failure", func() {
		merger := NewMockMerger(mockCtrl)
		builder = builder.WithMerger(merger)
		cfg.ExpectedSourceCount = 1

		merger.EXPECT().
			Merge(gomock.Any(), gomock.Any()).
			Return(errors.New("merge failed"))

		run()
		roc(2)

		Eventually(runErr).Should(Receive(MatchError("merge failed")))
	})

	It("should stop when canceled", func() {
		run()
		cancel()

		var err error
		Eventually(runErr).Should(Receive(&err))
		Expect(errors.Is(err, context.Canceled) ||
			errors.Is(err, admission.ErrShutdown)).To(BeTrue())
	})

	It("should drain, monitor and record a full run", func() {
		dir := GinkgoT().TempDir()
		cfg.OutputTarget = filepath.Join(dir, "streamingRTD.dat")

		recorder := datarecording.New(filepath.Join(dir, "record"))
		monitor := monitoring.NewMonitor().
			WithLogger(log.New(GinkgoWriter, "", 0))

		residence := tracing.NewAverageTimeTracer(tracing.WallClock(), nil)

		builder = builder.
			WithRecorder(recorder).
			WithMonitor(monitor).
			WithTracers(residence)
		run()

		a := roc(1)
		b := roc(2)

		for _, src := range []*fakeroc.Source{b, a} {
			Expect(src.SendEvents(ctx, 0, 1,
				fakeroc.Synthetic(2, []uint8{1, 2}, 600))).To(Succeed())
			Expect(src.EndAll()).To(Succeed())
		}

		Eventually(runErr, 5*time.Second).Should(Receive(BeNil()))
		Expect(monitor.Channels()).To(HaveLen(2))

		drain := agg.Merger().(*DrainMerger)
		Expect(drain.Records()).To(Equal(uint64(8)))
		Expect(residence.TotalCount()).To(BeNumerically(">=", 8))

		Expect(recorder.Close()).To(Succeed())
		reader, err := datarecording.NewReader(
			filepath.Join(dir, "record") + datarecording.FileExtension)
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable(datarecording.AdmissionTable, datarecording.AdmissionEntry{})
		_, admitted, err := reader.Query(ctx, datarecording.AdmissionTable,
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(admitted).To(Equal(2))

		output, err := os.ReadFile(cfg.OutputTarget)
		Expect(err).NotTo(HaveOccurred())

		r := evio.Decode(output)
		first, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Header().Tag).To(Equal(evio.TagPrestart))
		Expect(r.Block().Number).To(Equal(uint32(1)))
	})
})
