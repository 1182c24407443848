package worker

import (
	"fmt"
	"net/url"
	"strconv"
)

// PageURL appends offset to raw as the param query parameter. Offset 0 returns
// raw unchanged.
func PageURL(raw, param string, offset int) (string, error) {
	if offset == 0 {
		return raw, nil
	}
	if offset < 0 {
		return "", fmt.Errorf("negative offset %d", offset)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(offset))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
