package shared

// PagingInfo describes the position of a page inside a filtered listing.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
	HasNext  bool `json:"has_next"`
}

// NormalizePage clamps page and pageSize into the allowed window.
func NormalizePage(page, pageSize, maxPageSize int) (int, int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if maxPageSize > 0 && pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, pageSize
}

// NewPagingInfo builds paging metadata from a limit+1 query result.
func NewPagingInfo(page, pageSize int, hasNext bool) PagingInfo {
	info := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		info.PrevPage = page - 1
	}
	if hasNext {
		info.NextPage = page + 1
	}
	return info
}
