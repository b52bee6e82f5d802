package result

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	math "github.com/aclements/go-moremath/stats"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/probes"
	stats "github.com/montanaflynn/stats"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Specify Language specific case wrapper as global variable
var caser = cases.Title(language.English)

// Envelope is what a session hands to the upload path. Model, host, results
// and times keep their wire names; the metadata rides along.
type Envelope struct {
	Model            string                     `json:"model"`
	HostIdentifier   string                     `json:"hostIdentifier"`
	BenchmarkResults map[string]json.RawMessage `json:"benchmarkResults"`
	Times            map[string]float64         `json:"times"`
	Metadata
	// Results keeps the typed probe output, in run order, for local display.
	Results []probes.Result `json:"-"`
}

// Metadata for the run
type Metadata struct {
	UUID          string    `json:"uuid,omitempty"`
	Origin        string    `json:"origin,omitempty"`
	ToolVersion   string    `json:"toolVersion,omitempty"`
	ToolGitCommit string    `json:"toolGitCommit,omitempty"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
}

// Aggregate flattens probe results into an Envelope.
func Aggregate(model, host string, rs []probes.Result) (Envelope, error) {
	e := Envelope{
		Model:            model,
		HostIdentifier:   host,
		BenchmarkResults: make(map[string]json.RawMessage, len(rs)),
		Times:            make(map[string]float64, len(rs)),
		Results:          rs,
	}
	for _, r := range rs {
		if _, dup := e.BenchmarkResults[r.Name]; dup {
			return Envelope{}, fmt.Errorf("duplicate result for %s", r.Name)
		}
		b, err := r.JSON()
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding %s: %w", r.Name, err)
		}
		e.BenchmarkResults[r.Name] = b
		e.Times[r.Name] = float64(r.ElapsedTicks)
	}
	return e, nil
}

// Average accepts array of floats to calculate average
func Average(vals []float64) (float64, error) {
	return stats.Mean(vals)
}

// Median accepts array of floats to calculate the median
func Median(vals []float64) (float64, error) {
	return stats.Median(vals)
}

// Percentile accepts array of floats and the desired %tile to calculate
func Percentile(vals []float64, ptile float64) (float64, error) {
	return stats.Percentile(vals, ptile)
}

// ConfidenceInterval accepts array of floats to calculate the mean and its interval
func ConfidenceInterval(vals []float64, ci float64) (float64, float64, float64) {
	return math.MeanCI(vals, ci)
}

// Summary describes the y values of a probe.
type Summary struct {
	Points int
	Min    float64
	Median float64
	Max    float64
	P99    float64
	Lo     float64
	Hi     float64
}

// Summarize computes the summary of a result's y values. Results without
// data points return a zero Summary.
func Summarize(r probes.Result) Summary {
	ys := r.Ys()
	s := Summary{Points: len(ys)}
	if len(ys) == 0 {
		return s
	}
	s.Min, _ = stats.Min(ys)
	s.Max, _ = stats.Max(ys)
	s.Median, _ = Median(ys)
	s.P99, _ = Percentile(ys, 99)
	if len(ys) > 1 {
		_, s.Lo, s.Hi = ConfidenceInterval(ys, 0.95)
	}
	return s
}

// Method to init common table structure.
func initTable(header []string) *tablewriter.Table {
	// Create a new table writer with the appropriate header and alignment options
	table := tablewriter.NewWriter(os.Stdout)
	// Add a header to the table
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func displayName(name string) string {
	return caser.String(strings.ReplaceAll(name, "_", " "))
}

// ShowResults presents a one line summary per probe via stdout
func ShowResults(e Envelope) {
	logging.Debug("Rendering probe results")
	table := initTable([]string{"Result Type", "Probe", "Points", "Min", "Median", "P99", "Max", "95% Confidence Interval", "Elapsed ticks"})
	for _, r := range e.Results {
		s := Summarize(r)
		table.Append([]string{
			"📊 Probe Results", displayName(r.Name), strconv.Itoa(s.Points),
			fmt.Sprintf("%.0f", s.Min), fmt.Sprintf("%.1f", s.Median), fmt.Sprintf("%.1f", s.P99), fmt.Sprintf("%.0f", s.Max),
			fmt.Sprintf("%f-%f", s.Lo, s.Hi), strconv.FormatUint(r.ElapsedTicks, 10),
		})
	}
	table.Render()
}

// ShowCurve presents every data point of the named probe via stdout
func ShowCurve(e Envelope, name string) {
	for _, r := range e.Results {
		if r.Name != name || len(r.DataPoints) == 0 {
			continue
		}
		logging.Debugf("Rendering %s curve", name)
		table := initTable([]string{"Probe", "X", "Y (ticks)"})
		for _, dp := range r.DataPoints {
			table.Append([]string{displayName(r.Name), strconv.FormatUint(dp.X, 10), strconv.FormatUint(dp.Y, 10)})
		}
		table.Render()
	}
}
