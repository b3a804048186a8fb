package logger

import "strings"

// RedactEmail masks a recipient address so delivery logs stay correlatable
// without exposing who the mail went to. At most the first two characters
// of the local part survive; the domain is kept whole.
func RedactEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "***@***"
	}
	local, domain := addr[:at], addr[at+1:]
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}
