// Package cardrush extracts product listings from CardRush product-group pages
// and builds their paginated addresses.
//
// A listing page holds up to page_size "div.item_data" blocks. Out-of-range
// pages do not come back empty; the site redisplays page 1, which is why
// CardRush segments run with loop detection on.
package cardrush
