package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// linkPattern matches one link-value of a Link header: the target inside
// angle brackets and the parameters up to the next link.
var linkPattern = regexp.MustCompile(`<([^>]*)>((?:\s*;\s*[^;,]*)*)`)

// relPattern extracts the rel parameter, quoted or bare.
var relPattern = regexp.MustCompile(`(?i);\s*rel\s*=\s*(?:"([^"]*)"|([^\s;,"]+))`)

// walkPages fetches firstURL and every following page, decoding each body
// as a JSON array of T and handing it to fn. The walk ends when a response
// names no next page, or names a page already fetched.
func walkPages[T any](ctx context.Context, c *Client, firstURL string, fn func(pageURL string, items []T) error) error {
	seen := make(map[string]struct{})
	pageURL := firstURL
	for pageURL != "" {
		seen[pageURL] = struct{}{}
		resp, err := c.do(ctx, http.MethodGet, pageURL)
		if err != nil {
			return err
		}

		var items []T
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			return fmt.Errorf("failed to parse response from %s: %w", pageURL, err)
		}
		if err := fn(pageURL, items); err != nil {
			return err
		}

		next := nextPageURL(pageURL, resp.Header)
		if _, ok := seen[next]; ok {
			break
		}
		pageURL = next
	}
	return nil
}

// nextPageURL returns the URL of the page after current, or "" when current
// is the last page.
//
// The Link header (rel="next") is authoritative; keyset-paginated endpoints
// only send that. When no Link header is present the X-Next-Page header is
// applied to current's page parameter.
func nextPageURL(current string, h http.Header) string {
	if links := h.Values("Link"); len(links) > 0 {
		next := linkRel(links, "next")
		if next == "" {
			return ""
		}
		return resolve(current, next)
	}

	page := strings.TrimSpace(h.Get("X-Next-Page"))
	if page == "" {
		return ""
	}
	u, err := url.Parse(current)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("page", page)
	u.RawQuery = q.Encode()
	return u.String()
}

// linkRel finds the target of the first link with relation rel in a set of
// Link header values. A rel parameter may list several space-separated
// relation types.
func linkRel(values []string, rel string) string {
	for _, v := range values {
		for _, m := range linkPattern.FindAllStringSubmatch(v, -1) {
			rm := relPattern.FindStringSubmatch(m[2])
			if rm == nil {
				continue
			}
			types := rm[1]
			if types == "" {
				types = rm[2]
			}
			for _, r := range strings.Fields(types) {
				if strings.EqualFold(r, rel) {
					return m[1]
				}
			}
		}
	}
	return ""
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
