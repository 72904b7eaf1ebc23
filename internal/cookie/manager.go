// Package cookie builds authenticated-fetch options for the Downloader
// Adapter. Adapted from the teacher's browser-cookie extraction manager:
// that code reached into browser cookie databases directly, but the C5
// contract only needs the cookies_file / use_browser_cookies / browser_name
// enumeration turned into the external tool's own CLI flags, since
// yt-dlp-style tools already know how to read a browser's cookie store
// themselves.
package cookie

import (
	"fmt"

	"video-downloader/pkg/models"
)

var supportedBrowsers = map[models.BrowserName]struct{}{
	models.BrowserChrome:  {},
	models.BrowserFirefox: {},
	models.BrowserEdge:    {},
	models.BrowserSafari:  {},
}

// Options mirrors the config table's cookie-related keys (§6).
type Options struct {
	CookiesFile       string
	UseBrowserCookies bool
	BrowserName       models.BrowserName
}

// BuildArgs validates the mutual-exclusivity constraint between
// cookies_file and use_browser_cookies and returns the CLI flags the
// external tool expects.
func BuildArgs(opts Options) ([]string, error) {
	if opts.CookiesFile != "" && opts.UseBrowserCookies {
		return nil, fmt.Errorf("cookies_file and use_browser_cookies are mutually exclusive")
	}

	if opts.CookiesFile != "" {
		return []string{"--cookies", opts.CookiesFile}, nil
	}

	if opts.UseBrowserCookies {
		if _, ok := supportedBrowsers[opts.BrowserName]; !ok {
			return nil, fmt.Errorf("unsupported browser_name: %q", opts.BrowserName)
		}
		return []string{"--cookies-from-browser", string(opts.BrowserName)}, nil
	}

	return nil, nil
}
