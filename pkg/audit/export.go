package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
)

// ExportCSV writes filter-matching records to w as CSV, verifying the hash
// chain over the exported range first so a tampered log never ships quietly.
func (s *Sink) ExportCSV(w io.Writer, filter QueryFilter) error {
	if err := s.VerifyChain(); err != nil {
		return fmt.Errorf("audit: refusing export, chain invalid: %w", err)
	}

	recs, err := s.Query(filter)
	if err != nil {
		return err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Sequence < recs[j].Sequence })

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence", "timestamp", "actor", "event", "entry_hash"}); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			fmt.Sprintf("%d", r.Sequence),
			r.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			r.Actor,
			r.Event,
			r.EntryHash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
