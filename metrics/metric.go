package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bnb-chain/chain-tracker/logging"
)

var (
	PreconfirmedHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "preconfirmed_block_height",
		Help: "Height of the canonical tip selected from locally known blocks.",
	})

	ConfirmedHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ol_confirmed_block_height",
		Help: "Height of the execution block the OL reports as confirmed.",
	})

	FinalizedHeightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ol_finalized_block_height",
		Help: "Height of the execution block the OL reports as finalized.",
	})

	OrphanPoolSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orphan_pool_size",
		Help: "Number of blocks buffered while waiting for their parent.",
	})

	DiscardedBlocksCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "discarded_blocks_total",
		Help: "Blocks discarded because finality advanced past their branch.",
	})

	FatalResyncCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fatal_resync_total",
		Help: "Fatal inconsistencies that halted finality until resynchronization.",
	})

	ArchiveBucketQuotaGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archive_bucket_remaining_quota",
		Help: "Remaining read quota of the payload archive bucket in bytes.",
	})

	MetricsItems = []prometheus.Collector{
		PreconfirmedHeightGauge,
		ConfirmedHeightGauge,
		FinalizedHeightGauge,
		OrphanPoolSizeGauge,
		DiscardedBlocksCounter,
		FatalResyncCounter,
		ArchiveBucketQuotaGauge,
	}
)

const DefaultMetricsAddress = "0.0.0.0:9090"

type Metrics struct {
	httpAddress string
	registry    *prometheus.Registry
	httpServer  *http.Server
}

func NewMetrics(address string) *Metrics {
	if address == "" {
		address = DefaultMetricsAddress
	}
	return &Metrics{
		httpAddress: address,
		registry:    prometheus.NewRegistry(),
	}
}

func (m *Metrics) Start() {
	m.registry.MustRegister(MetricsItems...)
	go m.serve()
}

func (m *Metrics) serve() {
	router := mux.NewRouter()
	router.Path("/metrics").Handler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.httpServer = &http.Server{
		Addr:    m.httpAddress,
		Handler: router,
	}
	if err := m.httpServer.ListenAndServe(); err != nil {
		logging.Logger.Errorf("failed to listen and serve, err=%s", err.Error())
		panic(err)
	}
}
