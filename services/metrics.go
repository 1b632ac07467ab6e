package services

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"pubmed-graph/build"
	"pubmed-graph/providers"
	"pubmed-graph/providers/ftp"
)

var (
	articlesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pubmed_articles_ingested_total",
		Help: "Total number of articles written to the graph.",
	})
	filesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pubmed_files_processed_total",
		Help: "Total number of PubMed data files fully processed.",
	})
	downloadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pubmed_download_bytes_total",
		Help: "Total number of bytes downloaded from the FTP server.",
	})
	hashMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pubmed_hash_mismatches_total",
		Help: "Total number of downloaded files whose MD5 did not match.",
	})
	stageUtilisation = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pubmed_stage_utilisation",
		Help: "Busy fraction of each build stage over the last minute.",
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(articlesIngested, filesProcessed, downloadBytes, hashMismatches, stageUtilisation)
}

// RecordDownload passt auf ftp.FileDone und zählt Bytes und Prüfsummenfehler.
func RecordDownload(_ providers.Pair, n int64, err error) {
	downloadBytes.Add(float64(n))
	if errors.Is(err, ftp.ErrHashMismatch) {
		hashMismatches.Inc()
	}
}

var _ ftp.FileDone = RecordDownload

func recordUtilisation(stages []*build.Utilisation) {
	for _, u := range stages {
		stageUtilisation.WithLabelValues(u.Name).Set(u.Fraction())
	}
}
