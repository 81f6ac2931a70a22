// Package etl holds the extract, transform, load and notify task bodies of
// the reference pipeline and the workflow that chains them.
package etl

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Task IDs.
const (
	ExtractTask   = "extract_task"
	TransformTask = "transform_task"
	LoadTask      = "load_task"
	NotifyTask    = "send_email"
)

// Labels.
const (
	LabelRawData         = "raw_data"
	LabelTransformedData = "transformed_data"
	LabelEmailSubject    = "email_subject"
	LabelEmailBody       = "email_body"
)

// WorkflowID identifies the reference pipeline.
const WorkflowID = "xcom_etl_email_example"

// Subject is the completion email subject.
const Subject = "ETL Pipeline Completed Successfully ✅"

// Tags label the workflow.
var Tags = []string{"xcom", "etl", "email"}

// DefaultData is the sequence extract emits when none is configured.
var DefaultData = []float64{10, 20, 30, 40, 50}

// ErrEmptySequence is returned when the extracted sequence has no values.
var ErrEmptySequence = errors.New("cannot average empty sequence")

// Summary is the transform output.
type Summary struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
}

// Summarize computes the total and the arithmetic mean of data.
func Summarize(data []float64) (Summary, error) {
	if len(data) == 0 {
		return Summary{}, ErrEmptySequence
	}
	var total float64
	for _, v := range data {
		total += v
	}
	return Summary{Total: total, Average: total / float64(len(data))}, nil
}

// FormatTotal renders a total without trailing zeros: 150, 12.5.
func FormatTotal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatAverage renders a mean the way a true division prints it: whole
// values keep one decimal (30.0), others use the shortest representation.
func FormatAverage(v float64) string {
	if v == math.Trunc(v) && !math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RenderBody builds the HTML report for s.
func RenderBody(s Summary) string {
	var b strings.Builder
	b.WriteString("<h3>ETL Pipeline Report</h3>\n")
	b.WriteString("<p>Total Sum: " + FormatTotal(s.Total) + "</p>\n")
	b.WriteString("<p>Average Value: " + FormatAverage(s.Average) + "</p>\n")
	b.WriteString("<p>Status: Completed Successfully</p>\n")
	return b.String()
}
