package rating

// Metric names the registry scores on.
const (
	MetricRampUpTime      = "ramp_up_time"
	MetricBusFactor       = "bus_factor"
	MetricPerfClaims      = "performance_claims"
	MetricLicense         = "license"
	MetricSizeScore       = "size_score"
	MetricDatasetAndCode  = "dataset_and_code_score"
	MetricDatasetQuality  = "dataset_quality"
	MetricCodeQuality     = "code_quality"
	MetricReproducibility = "reproducibility"
	MetricTreeScore       = "tree_score"
	MetricReviewedness    = "reviewedness"
)

// Metric is one row of the static weight table.
type Metric struct {
	Name string
	// Weight of this metric in the net score. Weights sum to exactly 1.0.
	Weight float64
	// Neutral is substituted when the evaluator fails for this metric.
	Neutral float64
}

// The table is fixed: changing weights changes what "net score" means for
// every artifact already rated, so additions require a re-rating pass.
var metricTable = []Metric{
	{MetricRampUpTime, 0.15, 0.5},
	{MetricBusFactor, 0.15, 0.5},
	{MetricPerfClaims, 0.15, 0.5},
	{MetricLicense, 0.15, 0.5},
	{MetricSizeScore, 0.10, 0.5},
	{MetricDatasetAndCode, 0.10, 0.5},
	{MetricDatasetQuality, 0.05, 0.5},
	{MetricCodeQuality, 0.05, 0.5},
	{MetricReproducibility, 0.05, 0.5},
	{MetricTreeScore, 0.03, 0.5},
	{MetricReviewedness, 0.02, 0.5},
}

// Metrics returns a copy of the static metric table.
func Metrics() []Metric {
	out := make([]Metric, len(metricTable))
	copy(out, metricTable)
	return out
}

// KnownMetric reports whether name is a row of the table.
func KnownMetric(name string) bool {
	for _, m := range metricTable {
		if m.Name == name {
			return true
		}
	}
	return false
}

// NetScore computes the weighted sum over the fixed table. Metrics missing
// from scores contribute zero.
func NetScore(scores map[string]float64) float64 {
	net := 0.0
	for _, m := range metricTable {
		net += scores[m.Name] * m.Weight
	}
	return net
}
