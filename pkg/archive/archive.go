package archive

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cloud-bulldozer/go-commons/indexers"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/probes"
	result "github.com/cloud-bulldozer/uarch-profiler/pkg/results"
)

const ltcyMetric = "ticks"

// Doc struct of the JSON document to be indexed
type Doc struct {
	UUID           string             `json:"uuid"`
	Timestamp      time.Time          `json:"timestamp"`
	Model          string             `json:"model"`
	HostIdentifier string             `json:"hostIdentifier"`
	Probe          string             `json:"probe"`
	Points         int                `json:"points"`
	DataPoints     []probes.DataPoint `json:"dataPoints"`
	ElapsedTicks   float64            `json:"elapsedTicks"`
	Median         float64            `json:"median"`
	P99            float64            `json:"p99"`
	Confidence     []float64          `json:"confidence"`
	LtcyMetric     string             `json:"ltcyMetric"`
	ToolVersion    string             `json:"toolVersion"`
	ToolGitCommit  string             `json:"toolGitCommit"`
	Metadata       result.Metadata    `json:"metadata"`
}

// Connect returns a client connected to the desired cluster.
func Connect(url, index string, skip bool) (*indexers.Indexer, error) {
	var err error
	var indexer *indexers.Indexer
	indexerConfig := indexers.IndexerConfig{
		Type:               "opensearch",
		Servers:            []string{url},
		Index:              index,
		InsecureSkipVerify: skip,
	}
	logging.Infof("📁 Creating indexer: %s", indexerConfig.Type)
	indexer, err = indexers.NewIndexer(indexerConfig)
	if err != nil {
		logging.Errorf("%v indexer: %v", indexerConfig.Type, err.Error())
		return nil, fmt.Errorf("failure while connecting to OpenSearch")
	}
	logging.Infof("Connected to : %s ", url)
	return indexer, nil
}

// LocalIndexer returns an indexer writing documents under dir.
func LocalIndexer(dir string) (*indexers.Indexer, error) {
	indexerConfig := indexers.IndexerConfig{
		Type:             "local",
		MetricsDirectory: dir,
	}
	logging.Infof("📁 Creating indexer: %s (%s)", indexerConfig.Type, dir)
	indexer, err := indexers.NewIndexer(indexerConfig)
	if err != nil {
		return nil, fmt.Errorf("%v indexer: %w", indexerConfig.Type, err)
	}
	return indexer, nil
}

// BuildDocs returns the documents that need to be indexed or an error.
func BuildDocs(e result.Envelope, uuid string) ([]interface{}, error) {
	time := time.Now().UTC()

	var docs []interface{}
	if len(e.Results) < 1 {
		return nil, fmt.Errorf("no result documents")
	}
	for _, r := range e.Results {
		s := result.Summarize(r)
		d := Doc{
			UUID:           uuid,
			Timestamp:      time,
			Model:          e.Model,
			HostIdentifier: e.HostIdentifier,
			Probe:          r.Name,
			Points:         s.Points,
			DataPoints:     r.DataPoints,
			ElapsedTicks:   e.Times[r.Name],
			Median:         s.Median,
			P99:            s.P99,
			Confidence:     []float64{s.Lo, s.Hi},
			LtcyMetric:     ltcyMetric,
			ToolVersion:    e.ToolVersion,
			ToolGitCommit:  e.ToolGitCommit,
			Metadata:       e.Metadata,
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Index ships the envelope documents through indexer.
func Index(indexer indexers.Indexer, e result.Envelope, uuid string) error {
	docs, err := BuildDocs(e, uuid)
	if err != nil {
		return err
	}
	logging.Infof("Indexing [%d] documents with UUID %s", len(docs), uuid)
	resp, err := indexer.Index(docs, indexers.IndexingOpts{MetricName: "uarch-profiler"})
	if err != nil {
		return err
	}
	logging.Info(resp)
	return nil
}

// WriteJSONResult writes the envelope to stdout.
func WriteJSONResult(e result.Envelope) error {
	return writeJSON(os.Stdout, e)
}

func writeJSON(w io.Writer, e result.Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("failed to encode result envelope: %w", err)
	}
	return nil
}

// WriteCSVResult will write every data point to a CSV file
func WriteCSVResult(e result.Envelope) error {
	d := time.Now().Unix()
	fp, err := os.Create(fmt.Sprintf("result-%d.csv", d))
	if err != nil {
		return fmt.Errorf("failed to open archive file")
	}
	defer fp.Close()
	return writeCSV(fp, e)
}

func writeCSV(w io.Writer, e result.Envelope) error {
	archive := csv.NewWriter(w)
	defer archive.Flush()
	if err := archive.Write([]string{"Model", "Host", "Probe", "X", "Y", "Elapsed ticks"}); err != nil {
		return fmt.Errorf("failed to write result archive to file")
	}
	for _, r := range e.Results {
		elapsed := strconv.FormatUint(r.ElapsedTicks, 10)
		for _, dp := range r.DataPoints {
			if err := archive.Write([]string{
				e.Model,
				e.HostIdentifier,
				r.Name,
				strconv.FormatUint(dp.X, 10),
				strconv.FormatUint(dp.Y, 10),
				elapsed,
			}); err != nil {
				return fmt.Errorf("failed to write archive to file")
			}
		}
	}
	archive.Flush()
	return archive.Error()
}
