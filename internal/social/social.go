// Package social recognises public profile URLs on the platforms an outreach
// contact record cares about and reduces them to (platform, username).
package social

import (
	"net/url"
	"regexp"
	"strings"
)

// Platform names as stored in contact records.
const (
	LinkedIn  = "linkedin"
	Twitter   = "twitter"
	Facebook  = "facebook"
	Instagram = "instagram"
	YouTube   = "youtube"
	GitHub    = "github"
	Medium    = "medium"
	Pinterest = "pinterest"
	TikTok    = "tiktok"
	Threads   = "threads"
)

// Profile is a parsed profile URL.
type Profile struct {
	Platform string
	Username string
	// URL is the canonical profile URL.
	URL string
}

// Key is the dedupe key: platform plus case-folded username.
func (p Profile) Key() string {
	return p.Platform + ":" + strings.ToLower(p.Username)
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,99}$`)

type rule struct {
	platform string
	hosts    []string
	reserved map[string]bool
	parse    func(segs []string, q url.Values) (username string, canonicalPath string)
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

var rules = []rule{
	{
		platform: LinkedIn,
		hosts:    []string{"linkedin.com"},
		parse: func(segs []string, _ url.Values) (string, string) {
			if len(segs) < 2 {
				return "", ""
			}
			switch segs[0] {
			case "in", "pub":
				return segs[1], "/in/" + segs[1]
			case "company", "school", "showcase":
				return segs[0] + "/" + segs[1], "/" + segs[0] + "/" + segs[1]
			}
			return "", ""
		},
	},
	{
		platform: Twitter,
		hosts:    []string{"twitter.com", "x.com"},
		reserved: set("share", "intent", "home", "i", "search", "hashtag", "login", "signup",
			"explore", "settings", "privacy", "tos", "messages", "notifications"),
		parse: firstSegment,
	},
	{
		platform: Facebook,
		hosts:    []string{"facebook.com", "fb.com"},
		reserved: set("sharer", "sharer.php", "share.php", "share", "plugins", "dialog", "tr",
			"login", "login.php", "events", "groups", "hashtag", "watch", "policies", "help"),
		parse: func(segs []string, q url.Values) (string, string) {
			if len(segs) == 1 && segs[0] == "profile.php" {
				if id := q.Get("id"); id != "" {
					return id, "/profile.php?id=" + id
				}
				return "", ""
			}
			if len(segs) >= 2 && segs[0] == "pages" {
				last := segs[len(segs)-1]
				return last, "/" + strings.Join(segs, "/")
			}
			return firstSegment(segs, q)
		},
	},
	{
		platform: Instagram,
		hosts:    []string{"instagram.com"},
		reserved: set("p", "reel", "reels", "explore", "accounts", "stories", "tv", "direct"),
		parse:    firstSegment,
	},
	{
		platform: YouTube,
		hosts:    []string{"youtube.com"},
		reserved: set("watch", "embed", "results", "playlist", "shorts", "feed", "redirect"),
		parse: func(segs []string, q url.Values) (string, string) {
			if len(segs) == 0 {
				return "", ""
			}
			if strings.HasPrefix(segs[0], "@") {
				return strings.TrimPrefix(segs[0], "@"), "/" + segs[0]
			}
			if len(segs) >= 2 {
				switch segs[0] {
				case "channel", "c", "user":
					return segs[1], "/" + segs[0] + "/" + segs[1]
				}
			}
			return "", ""
		},
	},
	{
		platform: GitHub,
		hosts:    []string{"github.com"},
		reserved: set("features", "about", "pricing", "login", "join", "marketplace", "sponsors",
			"topics", "collections", "site", "contact", "orgs", "settings", "explore", "enterprise"),
		parse: firstSegment,
	},
	{
		platform: Medium,
		hosts:    []string{"medium.com"},
		parse: func(segs []string, _ url.Values) (string, string) {
			if len(segs) == 0 || !strings.HasPrefix(segs[0], "@") {
				return "", ""
			}
			return strings.TrimPrefix(segs[0], "@"), "/" + segs[0]
		},
	},
	{
		platform: Pinterest,
		hosts:    []string{"pinterest.com"},
		reserved: set("pin", "search", "ideas", "today", "login"),
		parse:    firstSegment,
	},
	{
		platform: TikTok,
		hosts:    []string{"tiktok.com"},
		parse: func(segs []string, _ url.Values) (string, string) {
			if len(segs) == 0 || !strings.HasPrefix(segs[0], "@") {
				return "", ""
			}
			return strings.TrimPrefix(segs[0], "@"), "/" + segs[0]
		},
	},
	{
		platform: Threads,
		hosts:    []string{"threads.net"},
		parse: func(segs []string, _ url.Values) (string, string) {
			if len(segs) == 0 || !strings.HasPrefix(segs[0], "@") {
				return "", ""
			}
			return strings.TrimPrefix(segs[0], "@"), "/" + segs[0]
		},
	},
}

var canonicalHost = map[string]string{
	LinkedIn:  "www.linkedin.com",
	Twitter:   "twitter.com",
	Facebook:  "www.facebook.com",
	Instagram: "www.instagram.com",
	YouTube:   "www.youtube.com",
	GitHub:    "github.com",
	Medium:    "medium.com",
	Pinterest: "www.pinterest.com",
	TikTok:    "www.tiktok.com",
	Threads:   "www.threads.net",
}

func firstSegment(segs []string, _ url.Values) (string, string) {
	if len(segs) == 0 {
		return "", ""
	}
	u := strings.TrimPrefix(segs[0], "@")
	return u, "/" + u
}

// PlatformOf returns the platform whose host matches rawURL's host, or "".
// It does not require a username to be present.
func PlatformOf(rawURL string) string {
	u, err := parse(rawURL)
	if err != nil {
		return ""
	}
	host := baseHost(u.Hostname())
	if r := ruleFor(host); r != nil {
		return r.platform
	}
	if strings.HasSuffix(host, ".medium.com") {
		return Medium
	}
	return ""
}

// Parse recognises rawURL as a profile URL. Share links, posts and other
// non-profile paths are rejected.
func Parse(rawURL string) (Profile, bool) {
	u, err := parse(rawURL)
	if err != nil {
		return Profile{}, false
	}
	host := baseHost(u.Hostname())

	// username.medium.com
	if strings.HasSuffix(host, ".medium.com") {
		name := strings.TrimSuffix(host, ".medium.com")
		if usernameRe.MatchString(name) && name != "www" && name != "help" && name != "policy" {
			return Profile{Platform: Medium, Username: name, URL: "https://medium.com/@" + name}, true
		}
		return Profile{}, false
	}

	r := ruleFor(host)
	if r == nil {
		return Profile{}, false
	}

	var segs []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if len(segs) > 0 && r.reserved[strings.ToLower(segs[0])] {
		return Profile{}, false
	}

	username, path := r.parse(segs, u.Query())
	check := username
	if i := strings.LastIndex(check, "/"); i >= 0 {
		check = check[i+1:]
	}
	if username == "" || !usernameRe.MatchString(check) {
		return Profile{}, false
	}

	return Profile{
		Platform: r.platform,
		Username: username,
		URL:      "https://" + canonicalHost[r.platform] + path,
	}, true
}

func parse(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	} else if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	return url.Parse(rawURL)
}

func baseHost(host string) string {
	host = strings.ToLower(host)
	for _, p := range []string{"www.", "m.", "mobile.", "web."} {
		host = strings.TrimPrefix(host, p)
	}
	// country subdomains such as uk.linkedin.com
	if strings.HasSuffix(host, ".linkedin.com") {
		return "linkedin.com"
	}
	return host
}

func ruleFor(host string) *rule {
	for i := range rules {
		for _, h := range rules[i].hosts {
			if host == h {
				return &rules[i]
			}
		}
	}
	return nil
}
