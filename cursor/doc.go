// Package cursor implements the positioning strategies that drive
// incremental extraction: id paging over auto increment keys, timestamp
// paging over modification instants, and unix paging for endpoints that
// take the position in the URL path.
package cursor
