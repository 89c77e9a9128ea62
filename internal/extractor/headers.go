package extractor

const (
	acceptHTML     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptLanguage = "en-US,en;q=0.9"
)

// Accept-Encoding is left to the transport: setting it by hand disables Go's
// transparent gzip decoding.

// CommonHeaders is the browser-like header set sent by the standard technique.
func CommonHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          acceptHTML,
		"Accept-Language": acceptLanguage,
		"Connection":      "keep-alive",
		"Referer":         "https://www.google.com/",
		"Cache-Control":   "max-age=0",
	}
}

// AdvancedHeaders is the fuller header set used by the session-based technique.
func AdvancedHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":                userAgent,
		"Accept":                    acceptHTML + ",application/signed-exchange;v=b3;q=0.7",
		"Accept-Language":           "en-US,en;q=0.9,ja;q=0.8",
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Cache-Control":             "max-age=0",
		"DNT":                       "1",
		"sec-ch-ua":                 `"Google Chrome";v="115", "Chromium";v="115", "Not/A)Brand";v="99"`,
		"sec-ch-ua-mobile":          "?0",
		"sec-ch-ua-platform":        `"Windows"`,
	}
}

func mergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	for k, v := range extra {
		base[k] = v
	}
	return base
}
