package models

// ChartKind is the visual form of a chart.
type ChartKind string

const (
	ChartBar  ChartKind = "bar"
	ChartLine ChartKind = "line"
	ChartPie  ChartKind = "pie"
)

// Categorical reports whether the kind compares discrete categories.
func (k ChartKind) Categorical() bool {
	return k == ChartBar || k == ChartPie
}

// Chart is the structured payload rendered by the client.
type Chart struct {
	Kind      ChartKind `json:"kind"`
	Title     string    `json:"title"`
	XLabel    string    `json:"x_label"`
	YLabel    string    `json:"y_label"`
	X         []any     `json:"x"`
	Y         []float64 `json:"y"`
	Truncated bool      `json:"truncated"`
}
