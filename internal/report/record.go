// Package report defines the normalized output of every check.
package report

import (
	"sort"
	"strconv"
	"strings"
)

// ServerError is the details marker for a check whose collaborator failed.
const ServerError = "Server error"

// NoneFound is the details value of a list check that found nothing.
const NoneFound = "0"

// Record names, stable across runs.
const (
	ObjectsOfInterest = "Objects of Interest"
	PersonDetection   = "Person Detection"
	PersonRecognition = "Person Recognition"
	FaceDetection     = "Face Detection"
	EyesOpenDetection = "Eyes Open Detection"
	MouthOpen         = "Mouth Open Detection"
	PitchDetection    = "Pitch Detection"
	RollDetection     = "Roll Detection"
	YawDetection      = "Yaw Detection"
	EmotionDetection  = "Emotion Detection"
	EyesDetection     = "Eyes Detection"
	UnsafeContent     = "Unsafe Content"
)

// TestRecord is the atomic unit of verification output. Success always means
// "policy satisfied".
type TestRecord struct {
	Name    string `json:"TestName"`
	Success bool   `json:"Success"`
	Details string `json:"Details"`
}

// Report is the ordered result of one verification request.
type Report []TestRecord

// Passed reports whether every record succeeded.
func (r Report) Passed() bool {
	for _, rec := range r {
		if !rec.Success {
			return false
		}
	}
	return true
}

// Find returns the first record with the given name.
func (r Report) Find(name string) (TestRecord, bool) {
	for _, rec := range r {
		if rec.Name == name {
			return rec, true
		}
	}
	return TestRecord{}, false
}

// Failed builds one failure record per name, all carrying details.
func Failed(details string, names ...string) []TestRecord {
	out := make([]TestRecord, len(names))
	for i, name := range names {
		out[i] = TestRecord{Name: name, Details: details}
	}
	return out
}

// Count renders an instance count.
func Count(n int) string {
	return strconv.Itoa(n)
}

// Number renders a provider measurement without trailing zeros. Values are
// formatted at float32 precision, the precision providers measure in, so a
// float64 from a wider provider is rounded to its shortest float32 form.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 32)
}

// YesNo renders a boolean attribute.
func YesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// SortedList returns NoneFound for an empty list, otherwise every name,
// duplicates included, sorted lexicographically and joined with ", ".
func SortedList(names []string) string {
	if len(names) == 0 {
		return NoneFound
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// LabelList returns NoneFound for an empty list, otherwise the distinct
// names sorted lexicographically and joined with ", ".
func LabelList(names []string) string {
	if len(names) == 0 {
		return NoneFound
	}
	seen := make(map[string]struct{}, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ", ")
}
