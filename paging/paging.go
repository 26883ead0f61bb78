// Package paging converts between page numbers and post/thread ordinals.
package paging

// PageToIndex returns the ordinal of the first entry on page, shifted by
// offset. Pages below 1 are treated as page 1.
func PageToIndex(page, pageSize, offset int) int {
	if page < 1 {
		page = 1
	}
	return (page-1)*pageSize + offset
}

// IndexToPage returns the page holding the entry at index, never less than 1.
func IndexToPage(index, pageSize int) int {
	if pageSize < 1 || index < 1 {
		return 1
	}
	return (index + pageSize - 1) / pageSize
}

// LastPage returns the number of pages needed to show count entries.
func LastPage(count, pageSize int) int {
	return IndexToPage(count, pageSize)
}

// FirstUnreadPage returns the page a reader should open to see the oldest
// unread post of a thread with the given counts.
func FirstUnreadPage(postCount, unreadCount, pageSize int) int {
	if unreadCount <= 0 || unreadCount > postCount {
		return LastPage(postCount, pageSize)
	}
	return IndexToPage(postCount-unreadCount+1, pageSize)
}
