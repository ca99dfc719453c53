package backendfake

import "net/http"

const (
	red     = "\033[31m"
	green   = "\033[32m"
	yellow  = "\033[33m"
	blue    = "\033[34m"
	magenta = "\033[35m"
	cyan    = "\033[36m"
	gray    = "\033[90m"
	reset   = "\033[0m"
)

var methodColours = map[string]string{
	http.MethodGet:    green,
	http.MethodPost:   blue,
	http.MethodPut:    cyan,
	http.MethodDelete: yellow,
	http.MethodPatch:  magenta,
}

func methodColour(method string) string {
	if c, ok := methodColours[method]; ok {
		return c
	}
	return gray
}

// statusColour marks 401s yellow so refresh traffic stands out in the log.
func statusColour(status int) string {
	switch {
	case status >= 500:
		return red
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return yellow
	case status >= 400:
		return magenta
	default:
		return green
	}
}
