package ingest

import (
	"sort"

	"github.com/Ramsey-B/productsync/pkg/models"
	"github.com/Ramsey-B/productsync/pkg/processor"
)

// Failure is one record of a batch that did not resolve.
type Failure struct {
	Index      int    `json:"index"`
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	Error      string `json:"error"`
}

// Summary counts the outcomes of a batch run.
type Summary struct {
	Total    int                         `json:"total"`
	ByKind   map[models.DecisionKind]int `json:"by_kind"`
	Failures []Failure                   `json:"failures"`
}

func Summarize(results []processor.RecordResult) Summary {
	s := Summary{
		Total:    len(results),
		ByKind:   map[models.DecisionKind]int{},
		Failures: []Failure{},
	}
	for _, r := range results {
		if r.Err != nil {
			f := Failure{Index: r.Index, Error: r.Err.Error()}
			if r.Record != nil {
				f.Source = r.Record.Source
				f.ExternalID = r.Record.ExternalID
			}
			s.Failures = append(s.Failures, f)
			continue
		}
		s.ByKind[r.Decision.Kind]++
	}
	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].Index < s.Failures[j].Index })
	return s
}
