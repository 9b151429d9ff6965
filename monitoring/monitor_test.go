package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/JeffersonLab/SRO-RTDP-sub001/admission"
	"github.com/JeffersonLab/SRO-RTDP-sub001/channel"
	"github.com/JeffersonLab/SRO-RTDP-sub001/hooking"
	"github.com/JeffersonLab/SRO-RTDP-sub001/naming"
	"github.com/JeffersonLab/SRO-RTDP-sub001/tracing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func get(h http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func getJSON(h http.Handler, url string, v interface{}) {
	rec := get(h, url)
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
}

func fill(b channel.Buffer, n int) {
	for i := 0; i < n; i++ {
		Expect(b.Push(context.Background(), &channel.Record{})).To(Succeed())
	}
}

var _ = Describe("Monitor", func() {
	var (
		m      *Monitor
		server *admission.Server
		router http.Handler
	)

	admit := func(index int, codaID int32) *admission.Admission {
		c := channel.MakeBuilder().
			WithID(int(codaID)).
			WithStreamIndex(index).
			WithInputCapacity(4).
			Build(naming.BuildWithIndex("Aggregator", "Input", index))

		adm := &admission.Admission{
			Session:   "session",
			Index:     index,
			Remote:    "127.0.0.1:5000",
			Handshake: admission.Handshake{CodaID: codaID, SocketCount: 1, SocketPosition: 1},
			Channels:  []channel.Channel{c},
		}

		m.Func(hooking.HookCtx{
			Domain: server,
			Pos:    admission.HookPosSourceAdmitted,
			Item:   adm,
		})

		return adm
	}

	BeforeEach(func() {
		m = NewMonitor().WithLogger(log.New(GinkgoWriter, "", 0))
		server = admission.MakeBuilder().
			WithExpectedSources(2).
			WithLogger(log.New(GinkgoWriter, "", 0)).
			Build("Aggregator")
		m.RegisterAdmission(server)
		router = m.Router()
	})

	It("should hook into the admission server", func() {
		Expect(server.Hooks()).To(ContainElement(m))
	})

	It("should report the admission status", func() {
		var status statusRsp
		getJSON(router, "/api/status", &status)

		Expect(status.Name).To(Equal("Aggregator"))
		Expect(status.State).To(Equal("listening"))
		Expect(status.Expected).To(Equal(2))
		Expect(status.Admitted).To(Equal(0))
	})

	It("should register the channels of admitted sources", func() {
		admit(0, 3)
		admit(1, 9)

		Expect(m.Channels()).To(HaveLen(2))

		var channels []channelRsp
		getJSON(router, "/api/channels", &channels)
		Expect(channels).To(HaveLen(2))
		Expect(channels[1].Name).To(Equal("Aggregator.Input[1]"))
		Expect(channels[1].ID).To(Equal(9))
		Expect(channels[1].StreamIndex).To(Equal(1))
	})

	It("should not register a channel twice", func() {
		adm := admit(0, 3)
		m.RegisterChannel(adm.Channels[0])

		Expect(m.Channels()).To(HaveLen(1))
	})

	It("should list no sources before any admission", func() {
		rec := get(router, "/api/sources")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(strings.TrimSpace(rec.Body.String())).To(Equal("[]"))
	})

	It("should report channel errors", func() {
		adm := admit(0, 3)
		adm.Channels[0].CloseWithError(errors.New("broken pipe"))

		var channels []channelRsp
		getJSON(router, "/api/channels", &channels)
		Expect(channels[0].Error).To(Equal("broken pipe"))
	})

	It("should answer 404 for an unknown channel", func() {
		rec := get(router, "/api/channel/Nope")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should describe a known channel", func() {
		admit(0, 3)

		rec := get(router, "/api/channel/Aggregator.Input%5B0%5D")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	Context("hang detector", func() {
		BeforeEach(func() {
			small := channel.NewBuffer("Small", 2)
			large := channel.NewBuffer("Large", 10)
			empty := channel.NewBuffer("Empty", 4)

			fill(small, 2)
			fill(large, 5)

			m.RegisterBuffer(empty)
			m.RegisterBuffer(small)
			m.RegisterBuffer(large)
		})

		names := func(url string) []string {
			var buffers []bufferRsp
			getJSON(router, url, &buffers)

			var n []string
			for _, b := range buffers {
				n = append(n, b.Buffer)
			}

			return n
		}

		It("should sort by percent by default", func() {
			Expect(names("/api/hangdetector/buffers")).
				To(Equal([]string{"Small", "Large", "Empty"}))
		})

		It("should sort by level", func() {
			Expect(names("/api/hangdetector/buffers?sort=level")).
				To(Equal([]string{"Large", "Small", "Empty"}))
		})

		It("should page", func() {
			Expect(names("/api/hangdetector/buffers?limit=1&offset=1")).
				To(Equal([]string{"Large"}))
			Expect(names("/api/hangdetector/buffers?offset=5")).
				To(BeEmpty())
		})

		It("should reject bad parameters", func() {
			Expect(get(router, "/api/hangdetector/buffers?sort=name").Code).
				To(Equal(http.StatusBadRequest))
			Expect(get(router, "/api/hangdetector/buffers?limit=x").Code).
				To(Equal(http.StatusBadRequest))
			Expect(get(router, "/api/hangdetector/buffers?offset=-1").Code).
				To(Equal(http.StatusBadRequest))
		})
	})

	It("should track admissions and stream ends in progress bars", func() {
		a := admit(0, 3)
		admit(1, 9)

		m.Func(hooking.HookCtx{
			Domain: server,
			Pos:    admission.HookPosStreamDone,
			Item:   a,
		})

		var bars []progressRsp
		getJSON(router, "/api/progress", &bars)
		Expect(bars).To(HaveLen(2))
		Expect(bars[0].Name).To(Equal("Sources admitted"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[1].Name).To(Equal("Streams ended"))
		Expect(bars[1].Finished).To(Equal(uint64(1)))
		Expect(bars[1].InProgress).To(Equal(uint64(1)))
	})

	It("should remove completed progress bars", func() {
		bar := m.CreateProgressBar("Merge", 10)
		m.CompleteProgressBar(bar)

		var bars []progressRsp
		getJSON(router, "/api/progress", &bars)
		Expect(bars).To(HaveLen(2))
	})

	It("should count admissions, rejections and stream outcomes", func() {
		a := admit(0, 3)
		b := admit(1, 9)

		m.Func(hooking.HookCtx{
			Pos:    admission.HookPosSourceRejected,
			Item:   "127.0.0.1:6000",
			Detail: &admission.HandshakeError{Reason: "bad magic"},
		})
		m.Func(hooking.HookCtx{Pos: admission.HookPosStreamDone, Item: a})
		m.Func(hooking.HookCtx{
			Pos:    admission.HookPosStreamDone,
			Item:   b,
			Detail: admission.ErrShutdown,
		})

		metrics := m.Metrics()
		Expect(testutil.ToFloat64(metrics.SourcesAdmitted)).To(Equal(2.0))
		Expect(testutil.ToFloat64(metrics.SourcesRejected)).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.StreamsEnded.WithLabelValues("end"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(
			metrics.StreamsEnded.WithLabelValues("shutdown"))).To(Equal(1.0))
	})

	It("should export channel levels to Prometheus", func() {
		adm := admit(0, 3)
		fill(adm.Channels[0].InputBuffer(), 2)

		rec := get(router, "/metrics")
		Expect(rec.Code).To(Equal(http.StatusOK))

		body, err := io.ReadAll(rec.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(
			`rtdp_channel_input_fill_percent{channel="Aggregator.Input[0]"} 50`))
		Expect(string(body)).To(ContainSubstring(
			"rtdp_admission_sources_admitted_total 1"))
	})

	It("should feed the level analyzer", func() {
		la := NewLevelAnalyzer(WallClock()).WithWriter(io.Discard)
		m.WithLevelAnalyzer(la)

		admit(0, 3)

		var levels []LevelReport
		getJSON(router, "/api/levels", &levels)
		Expect(levels).To(HaveLen(2))
		Expect(levels[0].Buffer).To(Equal("Aggregator.Input[0].InBuf"))
	})

	It("should report buffer residence times", func() {
		var rsp residenceRsp
		getJSON(router, "/api/residence", &rsp)
		Expect(rsp.Count).To(BeZero())

		residence := tracing.NewAverageTimeTracer(tracing.WallClock(), nil)
		m.WithResidenceTracer(residence)

		adm := admit(0, 3)
		tracing.NewBufferTracer(residence).Trace(adm.Channels[0])
		fill(adm.Channels[0].InputBuffer(), 2)
		_, err := adm.Channels[0].InputBuffer().Pop(context.Background())
		Expect(err).NotTo(HaveOccurred())

		getJSON(router, "/api/residence", &rsp)
		Expect(rsp.Count).To(Equal(uint64(1)))
		Expect(rsp.InFlight).To(Equal(1))
	})

	It("should serve on a free port", func() {
		url, err := m.WithPortNumber(0).StartServer()
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			Expect(m.Close(context.Background())).To(Succeed())
		}()

		rsp, err := http.Get(url + "/api/status")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))
	})
})
