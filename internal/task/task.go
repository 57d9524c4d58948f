// Package task defines the unit of work the harvesting engine schedules:
// list-page (ADLIST) and detail-page (ADVIEW) tasks, their stable identity
// keys, and the retry/phase metadata the queue and worker attach to them.
package task

import "fmt"

// Kind distinguishes the two task shapes the engine schedules.
type Kind string

const (
	KindListPage   Kind = "list-page"
	KindDetailPage Kind = "detail-page"
)

// Intent is the commercial intent of a listing: for sale or for rent.
type Intent string

const (
	IntentSale Intent = "sale"
	IntentRent Intent = "rent"
)

// Segment is the property segment: residential or commercial.
type Segment string

const (
	SegmentResidential Segment = "residential"
	SegmentCommercial  Segment = "commercial"
)

// Phase tags whether a task is on its first pass through a stage or is
// being re-run as part of the post-primary final sweep.
type Phase string

const (
	PhasePrimary    Phase = "primary"
	PhaseFinalSweep Phase = "final-sweep"
)

// Key is the stable identity used for de-duplication and completion
// tracking. For list-page tasks it is (intent, segment, page_no); for
// detail-page tasks it is the canonical URL.
type Key string

// Task is one unit of work admitted to a Stage.
type Task struct {
	Kind    Kind
	Key     Key
	Intent  Intent
	Segment Segment
	PageNo  int // list-page only, >= 1

	URL       string // detail-page only
	ListingID string // detail-page only, carried through from ADLIST

	Attempt int // 1, 2, or 3
	Phase   Phase

	// Seq is an insertion sequence number slot. Nothing sets or reads it;
	// the Stage's delayed-retry heap keeps its own sequence number on each
	// heap entry to break ties between equal ready times.
	Seq int64
}

// NewListPageTask builds a primary list-page task and computes its key.
func NewListPageTask(intent Intent, segment Segment, pageNo int) Task {
	t := Task{
		Kind:    KindListPage,
		Intent:  intent,
		Segment: segment,
		PageNo:  pageNo,
		Attempt: 1,
		Phase:   PhasePrimary,
	}
	t.Key = ListPageKey(intent, segment, pageNo)
	return t
}

// NewDetailPageTask builds a primary detail-page task and computes its key.
func NewDetailPageTask(url string, intent Intent, segment Segment, listingID string) Task {
	t := Task{
		Kind:      KindDetailPage,
		URL:       url,
		Intent:    intent,
		Segment:   segment,
		ListingID: listingID,
		Attempt:   1,
		Phase:     PhasePrimary,
	}
	t.Key = Key(url)
	return t
}

// ListPageKey computes the stable key for a list-page task.
func ListPageKey(intent Intent, segment Segment, pageNo int) Key {
	return Key(fmt.Sprintf("list:%s:%s:%d", intent, segment, pageNo))
}

// StageFileLabel returns a filesystem-safe identifier for the raw response
// dump this task produces, matching spec.md's
// adlist/<intent>_<segment>_page_<n>.json and
// adview/adview_<intent>_<segment>_<listing_id_or_url_safe>.json naming.
func (t Task) StageFileLabel() string {
	switch t.Kind {
	case KindListPage:
		return fmt.Sprintf("%s_%s_page_%d", t.Intent, t.Segment, t.PageNo)
	default:
		id := t.ListingID
		if id == "" {
			id = urlSafe(t.URL)
		}
		return fmt.Sprintf("adview_%s_%s_%s", t.Intent, t.Segment, id)
	}
}

func urlSafe(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
