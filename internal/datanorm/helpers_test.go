package datanorm

import "time"

const (
	timeoutShort = time.Second
	tick         = 10 * time.Millisecond
)
