package store

import "time"

const rfc3339Nano = time.RFC3339Nano

var zeroTime = time.Unix(0, 0).UTC()

func parseTime(s string) (time.Time, error) {
	return time.Parse(rfc3339Nano, s)
}
