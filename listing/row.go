package listing

import (
	"errors"
	"log"

	"github.com/ptt/forumsync/forum"
)

var (
	ErrNoListingRoot = errors.New("listing root not found")

	errHeaderRow = errors.New("header row")
)

// Row is the outcome of parsing one listing row: either a thread or the
// reason it was dropped.
type Row struct {
	Thread forum.Thread
	Err    error
}

// RowError tells which row was dropped and why.
type RowError struct {
	Pos    int
	NodeID string
	Err    error
}

func (e *RowError) Error() string {
	return "row " + e.NodeID + ": " + e.Err.Error()
}

func (e *RowError) Unwrap() error { return e.Err }

// Collect returns the successfully parsed threads in order and logs the
// dropped ones. Header rows are skipped quietly.
func Collect(rows []Row) []forum.Thread {
	threads := make([]forum.Thread, 0, len(rows))
	for _, r := range rows {
		if r.Err != nil {
			if !errors.Is(r.Err, errHeaderRow) {
				log.Println("listing: dropped", r.Err)
			}
			continue
		}
		threads = append(threads, r.Thread)
	}
	return threads
}
