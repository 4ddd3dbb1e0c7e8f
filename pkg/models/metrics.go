package models

import "encoding/json"

// Metrics is the model evaluation summary served by the prediction service.
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	// Rows are objects except "accuracy", which sklearn reports as a bare number.
	ClassificationReport map[string]json.RawMessage `json:"classification_report"`
	ClassNames           []string                   `json:"class_names"`
	ConfusionMatrix      [][]int                    `json:"confusion_matrix"`
}

// ReportAverages holds one row of the classification report.
type ReportAverages struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   float64 `json:"support"`
}

// Row decodes a classification report row by name.
func (m *Metrics) Row(name string) (ReportAverages, bool) {
	var out ReportAverages
	if m == nil {
		return out, false
	}
	raw, ok := m.ClassificationReport[name]
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false
	}
	return out, true
}

// WeightedAvg returns the "weighted avg" row, zero valued when absent.
func (m *Metrics) WeightedAvg() ReportAverages {
	row, _ := m.Row("weighted avg")
	return row
}
