package audit

import "time"

// TimelineFilters narrows the security audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one rendered audit record.
type TimelineRow struct {
	At       time.Time
	Actor    string
	Action   string
	ClientIP string
	Detail   string
}

// PagingInfo holds simple pagination metadata.
type PagingInfo struct {
	Page     int
	HasNext  bool
	PageSize int
	PrevPage int
	NextPage int
}

// FiltersViewModel echoes the active filters to the template.
type FiltersViewModel struct {
	From   time.Time
	To     time.Time
	Actor  string
	Action string
}

// ViewModel is the template data of the audit timeline page.
type ViewModel struct {
	Filters FiltersViewModel
	Rows    []TimelineRow
	Paging  PagingInfo
	Actions []string
}
