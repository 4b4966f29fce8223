package referrers

import "strings"

// Referrer categories
const (
	CategorySearch    = "search"
	CategorySocial    = "social"
	CategoryCommunity = "community"
	CategoryVideo     = "video"
	CategoryDirect    = "direct"
	CategoryOther     = "other"
)

// Direct is the display name of traffic without a referrer.
const Direct = "Direct"

type referrer struct {
	name     string
	category string
}

// Common referrer hostnames mapped to friendly display names
var knownReferrers = map[string]referrer{
	// Search engines
	"google.com":     {"Google", CategorySearch},
	"google.co.uk":   {"Google", CategorySearch},
	"google.de":      {"Google", CategorySearch},
	"google.fr":      {"Google", CategorySearch},
	"google.es":      {"Google", CategorySearch},
	"google.it":      {"Google", CategorySearch},
	"google.ca":      {"Google", CategorySearch},
	"google.com.au":  {"Google", CategorySearch},
	"google.co.jp":   {"Google", CategorySearch},
	"google.com.br":  {"Google", CategorySearch},
	"google.co.kr":   {"Google", CategorySearch},
	"bing.com":       {"Bing", CategorySearch},
	"duckduckgo.com": {"DuckDuckGo", CategorySearch},
	"yahoo.com":      {"Yahoo", CategorySearch},
	"baidu.com":      {"Baidu", CategorySearch},
	"yandex.ru":      {"Yandex", CategorySearch},
	"naver.com":      {"Naver", CategorySearch},
	"ecosia.org":     {"Ecosia", CategorySearch},
	"kagi.com":       {"Kagi", CategorySearch},

	// Social media
	"x.com":          {"X/Twitter", CategorySocial},
	"twitter.com":    {"X/Twitter", CategorySocial},
	"t.co":           {"X/Twitter", CategorySocial},
	"facebook.com":   {"Facebook", CategorySocial},
	"l.facebook.com": {"Facebook", CategorySocial},
	"instagram.com":  {"Instagram", CategorySocial},
	"tiktok.com":     {"TikTok", CategorySocial},
	"pinterest.com":  {"Pinterest", CategorySocial},
	"threads.net":    {"Threads", CategorySocial},
	"bsky.app":       {"Bluesky", CategorySocial},
	"weibo.com":      {"Weibo", CategorySocial},
	"discord.com":    {"Discord", CategorySocial},
	"discordapp.com": {"Discord", CategorySocial},
	"t.me":           {"Telegram", CategorySocial},
	"telegram.org":   {"Telegram", CategorySocial},
	"line.me":        {"LINE", CategorySocial},

	// Gaming communities and guide sites
	"reddit.com":            {"Reddit", CategoryCommunity},
	"old.reddit.com":        {"Reddit", CategoryCommunity},
	"hoyolab.com":           {"HoYoLAB", CategoryCommunity},
	"hoyoverse.com":         {"HoYoverse", CategoryCommunity},
	"genshin.hoyoverse.com": {"HoYoverse", CategoryCommunity},
	"fandom.com":            {"Fandom", CategoryCommunity},
	"game8.co":              {"Game8", CategoryCommunity},
	"keqingmains.com":       {"KQM", CategoryCommunity},
	"genshin.gg":            {"Genshin.gg", CategoryCommunity},
	"akasha.cv":             {"Akasha", CategoryCommunity},
	"enka.network":          {"Enka.Network", CategoryCommunity},
	"paimon.moe":            {"Paimon.moe", CategoryCommunity},
	"gamewith.jp":           {"GameWith", CategoryCommunity},
	"bilibili.com":          {"Bilibili", CategoryCommunity},
	"steamcommunity.com":    {"Steam Community", CategoryCommunity},
	"gamefaqs.gamespot.com": {"GameFAQs", CategoryCommunity},

	// Video and streaming
	"youtube.com":  {"YouTube", CategoryVideo},
	"youtu.be":     {"YouTube", CategoryVideo},
	"twitch.tv":    {"Twitch", CategoryVideo},
	"nicovideo.jp": {"Niconico", CategoryVideo},

	// Link shorteners
	"bit.ly":      {"Bitly", CategoryOther},
	"tinyurl.com": {"TinyURL", CategoryOther},
}

func lookup(hostname string) (referrer, string, bool) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))

	// Check exact match first
	if ref, ok := knownReferrers[hostname]; ok {
		return ref, hostname, true
	}

	// Try without www. and mobile prefixes
	for _, prefix := range []string{"www.", "m.", "mobile."} {
		if strings.HasPrefix(hostname, prefix) {
			trimmed := hostname[len(prefix):]
			if ref, ok := knownReferrers[trimmed]; ok {
				return ref, trimmed, true
			}
			if prefix == "www." {
				hostname = trimmed
			}
		}
	}

	// Check if it's a subdomain of a known referrer
	for domain, ref := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) {
			return ref, hostname, true
		}
	}
	return referrer{}, hostname, false
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with "www." removed and first letter capitalized. An empty hostname is
// direct traffic.
func FriendlyName(hostname string) string {
	if strings.TrimSpace(hostname) == "" {
		return Direct
	}
	ref, host, ok := lookup(hostname)
	if ok {
		return ref.name
	}
	return capitalizeFirst(host)
}

// Category groups a referrer hostname into search, social, community, video,
// direct or other traffic.
func Category(hostname string) string {
	if strings.TrimSpace(hostname) == "" {
		return CategoryDirect
	}
	if ref, _, ok := lookup(hostname); ok {
		return ref.category
	}
	return CategoryOther
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
