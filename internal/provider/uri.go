package provider

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	Scheme    = "content"
	Authority = "com.mpprefs.providers"
	Entity    = "preferences"
)

type Match int

const (
	NoMatch Match = iota
	MatchCollection
	MatchItem
)

// CollectionURI addresses every preference: content://authority/preferences.
func CollectionURI() *url.URL {
	return &url.URL{Scheme: Scheme, Host: Authority, Path: "/" + Entity}
}

// ItemURI addresses one preference: content://authority/preferences/<key>.
// The key is escaped as a single path segment.
func ItemURI(key string) *url.URL {
	u := CollectionURI()
	u.Path = "/" + Entity + "/" + key
	u.RawPath = "/" + Entity + "/" + url.PathEscape(key)
	return u
}

// MatchURI classifies u and returns the item key for MatchItem.
func MatchURI(u *url.URL) (Match, string) {
	if u == nil || u.Scheme != Scheme || u.Host != Authority {
		return NoMatch, ""
	}

	segments := strings.Split(strings.TrimPrefix(u.EscapedPath(), "/"), "/")
	if len(segments) == 0 || segments[0] != Entity {
		return NoMatch, ""
	}
	switch len(segments) {
	case 1:
		return MatchCollection, ""
	case 2:
		key, err := url.PathUnescape(segments[1])
		if err != nil {
			return NoMatch, ""
		}
		return MatchItem, key
	}
	return NoMatch, ""
}

// KeyOf returns the preference key addressed by an item URI, or "" for
// the collection.
func KeyOf(u *url.URL) string {
	_, key := MatchURI(u)
	return key
}

func mustMatch(u *url.URL, op string) (Match, string) {
	m, key := MatchURI(u)
	if m == NoMatch {
		panic(fmt.Sprintf("%s: unknown URL %v", op, u))
	}
	return m, key
}

// Matches reports whether a change at u concerns an observer registered
// on base.
func Matches(base *url.URL, descendants bool, u *url.URL) bool {
	if descendants {
		return isDescendant(base, u)
	}
	return base.String() == u.String()
}

// isDescendant reports whether u equals base or lies below it.
func isDescendant(base, u *url.URL) bool {
	if base.Scheme != u.Scheme || base.Host != u.Host {
		return false
	}
	bp, up := base.EscapedPath(), u.EscapedPath()
	return up == bp || strings.HasPrefix(up, strings.TrimSuffix(bp, "/")+"/")
}
