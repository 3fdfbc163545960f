package crawler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxRobotsSubTimeout = 5 * time.Second

// RobotsRules holds the Disallow prefixes of the "User-agent: *" group.
// Rules for named agents are ignored.
type RobotsRules struct {
	Disallow []string
}

// ParseRobots parses robots.txt content. Comments, blank lines and unknown
// directives are skipped.
func ParseRobots(content string) RobotsRules {
	var rules RobotsRules
	appliesToAll := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			appliesToAll = value == "*"
		case "disallow":
			if appliesToAll {
				rules.Disallow = append(rules.Disallow, value)
			}
		}
	}

	return rules
}

// Blocks reports whether path starts with any non-empty Disallow prefix
func (r RobotsRules) Blocks(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, rule := range r.Disallow {
		if rule == "" {
			continue
		}
		if strings.HasPrefix(path, rule) {
			return true
		}
	}
	return false
}

// checkRobots fetches robots.txt for the target's origin. A failed fetch or
// a non-2xx answer means "not blocked"; the fetch error is returned so the
// caller can record it.
func (c *Crawler) checkRobots(ctx context.Context, target *url.URL, opts Options) (bool, error) {
	sub := opts.Timeout
	if sub > maxRobotsSubTimeout {
		sub = maxRobotsSubTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, sub)
	defer cancel()
	ctx, span := tracer.Start(ctx, "crawler.robots")
	defer span.End()

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", opts.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return false, fmt.Errorf("robots.txt: %w", err)
	}

	return ParseRobots(string(body)).Blocks(target.EscapedPath()), nil
}
