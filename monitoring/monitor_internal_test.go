package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tcpgoodput/network"
	"github.com/sarchlab/tcpgoodput/sim/timing"
)

type sampleComponent struct {
	name  string
	Count int
}

func (c *sampleComponent) Name() string {
	return c.name
}

type countingEngine struct {
	paused    atomic.Bool
	pauses    atomic.Int32
	continues atomic.Int32
}

func (e *countingEngine) Now() timing.VTimeInSec { return 0 }

func (e *countingEngine) Pause() {
	e.pauses.Add(1)
	e.paused.Store(true)
}

func (e *countingEngine) Continue() {
	e.continues.Add(1)
	e.paused.Store(false)
}

func (e *countingEngine) IsPaused() bool { return e.paused.Load() }

var _ = Describe("Monitor", func() {
	var (
		engine *timing.SerialEngine
		m      *Monitor
		router http.Handler
	)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

		return rec
	}

	BeforeEach(func() {
		engine = timing.NewSerialEngine()
		m = NewMonitor()
		m.RegisterEngine(engine)
		m.RegisterComponent(&sampleComponent{name: "Left0", Count: 3})
		m.RegisterComponent(&sampleComponent{name: "Right0"})
		router = m.Router()
	})

	It("should list components", func() {
		rec := get("/api/list_components")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(`["Left0","Right0"]`))
	})

	It("should dump a component", func() {
		rec := get("/api/component/Left0")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
		Expect(engine.IsPaused()).To(BeFalse())
	})

	It("should report unknown components", func() {
		rec := get("/api/component/Nobody")

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should report the simulated time", func() {
		rec := get("/api/now")

		Expect(rec.Body.String()).To(MatchJSON(`{"now":0,"paused":false}`))
	})

	It("should pause and continue the engine", func() {
		get("/api/pause")
		Expect(engine.IsPaused()).To(BeTrue())

		rec := get("/api/now")
		Expect(rec.Body.String()).To(MatchJSON(`{"now":0,"paused":true}`))

		get("/api/continue")
		Expect(engine.IsPaused()).To(BeFalse())
	})

	It("should report queue levels", func() {
		q := network.NewDropTailQueue("Router.Dev0.Queue", network.QueueConfig{
			Mode:     network.QueueModeBytes,
			MaxBytes: 1000,
		})
		q.Enqueue(&network.Packet{Size: 98})
		m.RegisterQueue(q)

		rec := get("/api/queues")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(MatchJSON(
			`[{"queue":"Router.Dev0.Queue","level":100,"cap":1000}]`))
	})

	It("should reject unknown sort methods", func() {
		rec := get("/api/queues?sort=name")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should list and complete progress bars", func() {
		bar := m.CreateProgressBar("Simulation", 100)
		bar.SetFinished(30)

		var rsp []map[string]any
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &rsp)).
			To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0]["name"]).To(Equal("Simulation"))
		Expect(rsp[0]["finished"]).To(BeNumerically("==", 30))
		Expect(rsp[0]).NotTo(HaveKey("in_progress"))

		bar.SetFinished(250)
		rsp = nil
		Expect(json.Unmarshal(get("/api/progress").Body.Bytes(), &rsp)).
			To(Succeed())
		Expect(rsp[0]["finished"]).To(BeNumerically("==", 100))

		m.CompleteProgressBar(bar)
		Expect(get("/api/progress").Body.String()).To(MatchJSON(`[]`))
	})
})

var _ = Describe("Monitor engine control", func() {
	var (
		engine *countingEngine
		m      *Monitor
	)

	BeforeEach(func() {
		engine = &countingEngine{}
		m = NewMonitor()
		m.RegisterEngine(engine)
	})

	It("should keep the engine paused for every concurrent read", func() {
		const readers = 50

		var (
			wg       sync.WaitGroup
			unpaused atomic.Int32
		)

		for range readers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				m.whilePaused(func() {
					if !engine.IsPaused() {
						unpaused.Add(1)
					}
				})
			}()
		}

		wg.Wait()

		Expect(unpaused.Load()).To(BeZero())
		Expect(engine.IsPaused()).To(BeFalse())
		Expect(engine.pauses.Load()).To(Equal(engine.continues.Load()))
	})

	It("should leave a paused engine paused after a read", func() {
		engine.Pause()

		m.whilePaused(func() {})

		Expect(engine.IsPaused()).To(BeTrue())
		Expect(engine.continues.Load()).To(BeZero())
	})
})

var _ = Describe("sortAndSelectQueues", func() {
	var queues []queueRsp

	BeforeEach(func() {
		queues = []queueRsp{
			{Queue: "A", Level: 10, Cap: 100},
			{Queue: "B", Level: 50, Cap: 1000},
			{Queue: "C", Level: 9, Cap: 10},
			{Queue: "D", Level: 0, Cap: 10},
		}
	})

	names := func(qs []queueRsp) []string {
		var out []string
		for _, q := range qs {
			out = append(out, q.Queue)
		}

		return out
	}

	It("should sort by percent", func() {
		sorted := sortAndSelectQueues(queues, "percent", 0, 0)

		Expect(names(sorted)).To(Equal([]string{"C", "A", "B", "D"}))
	})

	It("should sort by level", func() {
		sorted := sortAndSelectQueues(queues, "level", 0, 0)

		Expect(names(sorted)).To(Equal([]string{"B", "A", "C", "D"}))
	})

	It("should page through the queues", func() {
		Expect(names(sortAndSelectQueues(queues, "level", 2, 1))).
			To(Equal([]string{"A", "C"}))
		Expect(names(sortAndSelectQueues(queues, "level", 10, 3))).
			To(Equal([]string{"D"}))
		Expect(sortAndSelectQueues(queues, "level", 1, 4)).To(BeEmpty())
	})
})
