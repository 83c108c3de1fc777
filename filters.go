package sharekit

import "time"

// ProvenanceFilter provides options for filtering ledger history queries.
type ProvenanceFilter struct {
	// Filter by the subject of the grant
	SubjectID string

	// Filter by the object of the grant
	ObjectID string

	// Filter by the grantor recorded on the entry
	GrantorID string

	// Filter by the undone flag; nil matches both
	Undone *bool

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// NewProvenanceFilter creates a ProvenanceFilter with default values.
func NewProvenanceFilter() ProvenanceFilter {
	return ProvenanceFilter{
		Limit: 100,
	}
}

// WithSubject sets the subject ID filter.
func (f ProvenanceFilter) WithSubject(subjectID string) ProvenanceFilter {
	f.SubjectID = subjectID
	return f
}

// WithObject sets the object ID filter.
func (f ProvenanceFilter) WithObject(objectID string) ProvenanceFilter {
	f.ObjectID = objectID
	return f
}

// WithPair sets both the subject and object filters from a pair.
func (f ProvenanceFilter) WithPair(p Pair) ProvenanceFilter {
	f.SubjectID = p.SubjectID
	f.ObjectID = p.ObjectID
	return f
}

// WithGrantor sets the grantor filter.
func (f ProvenanceFilter) WithGrantor(grantorID string) ProvenanceFilter {
	f.GrantorID = grantorID
	return f
}

// WithUndone sets the undone-flag filter.
func (f ProvenanceFilter) WithUndone(undone bool) ProvenanceFilter {
	f.Undone = &undone
	return f
}

// WithTimeRange sets the time range filter.
func (f ProvenanceFilter) WithTimeRange(since, until time.Time) ProvenanceFilter {
	f.Since = since
	f.Until = until
	return f
}

// WithSince sets the start time filter.
func (f ProvenanceFilter) WithSince(since time.Time) ProvenanceFilter {
	f.Since = since
	return f
}

// WithUntil sets the end time filter.
func (f ProvenanceFilter) WithUntil(until time.Time) ProvenanceFilter {
	f.Until = until
	return f
}

// WithLimit sets the limit for results.
func (f ProvenanceFilter) WithLimit(limit int) ProvenanceFilter {
	f.Limit = limit
	return f
}

// WithOffset sets the offset for pagination.
func (f ProvenanceFilter) WithOffset(offset int) ProvenanceFilter {
	f.Offset = offset
	return f
}

// WithPagination sets both limit and offset.
func (f ProvenanceFilter) WithPagination(limit, offset int) ProvenanceFilter {
	f.Limit = limit
	f.Offset = offset
	return f
}
