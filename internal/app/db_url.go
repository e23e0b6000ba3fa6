package app

import (
	"net/url"
	"strings"
)

// normalizeDBURL appends disable_prepared_binary_result=yes when the config
// asks for it and the DSN does not already pin a value. Some pooled
// Postgres front ends reject binary result rows on prepared statements.
func normalizeDBURL(raw string, disablePreparedBinaryResult bool) string {
	if !disablePreparedBinaryResult {
		return raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}

	values := parsed.Query()
	if values.Get("disable_prepared_binary_result") == "" {
		values.Set("disable_prepared_binary_result", "yes")
		parsed.RawQuery = values.Encode()
	}
	return parsed.String()
}

// dbNameFromURL extracts the database name for trace attribution. Both
// URL-style and keyword/value-style connection strings are accepted.
func dbNameFromURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if name := dbNameFromURLPath(trimmed); name != "" {
		return name
	}
	return dbNameFromKeywords(trimmed)
}

func dbNameFromURLPath(conn string) string {
	parsed, err := url.Parse(conn)
	if err != nil || parsed == nil || parsed.Scheme == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/"))
}

func dbNameFromKeywords(conn string) string {
	for _, field := range strings.Fields(conn) {
		value, ok := strings.CutPrefix(field, "dbname=")
		if !ok {
			continue
		}
		if name := strings.Trim(strings.TrimSpace(value), `"'`); name != "" {
			return name
		}
	}
	return ""
}
