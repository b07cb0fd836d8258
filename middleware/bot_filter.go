package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextBotKey marks a request identified as automated traffic. Tracking
// handlers skip recording for flagged requests but still answer 200 so
// crawlers see nothing special.
const ContextBotKey = "is_bot"

// User-Agent fragments of search engines, social crawlers, SEO tools,
// monitoring services and scripted clients. Matching is substring based on
// the lowercased UA.
var botPatterns = []string{
	// search engine crawlers
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "sogou", "exabot", "ia_archiver",
	// social media crawlers
	"facebookexternalhit", "facebot", "twitterbot", "linkedinbot",
	"pinterest", "whatsapp", "telegrambot", "discordbot", "slackbot",
	// SEO and analytics tools
	"semrushbot", "ahrefsbot", "mj12bot", "dotbot", "petalbot",
	"serpstatbot", "seokicks", "blexbot",
	// monitoring and uptime services
	"uptimerobot", "pingdom", "statuscake", "site24x7", "newrelicpinger",
	"datadog",
	// generic automation
	"bot", "spider", "crawler", "scraper", "headless", "phantom",
	"selenium", "puppeteer", "playwright", "curl", "wget",
	"python-requests", "python-urllib", "go-http-client", "java/",
	"libwww", "httpclient",
	// preview generators and feed readers
	"preview", "thumbnail", "snapshot", "feedfetcher", "feedly", "newsblur",
	// other known bots
	"applebot", "archive.org_bot", "coccocbot", "seznambot", "rogerbot",
	"screaming frog",
}

// BotFilter flags automated traffic so view counts only reflect humans.
// It never blocks the request; it only sets ContextBotKey.
func BotFilter() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set(ContextBotKey, isBot(ctx))
		ctx.Next()
	}
}

// IsBot reads the flag set by BotFilter, defaulting to a direct check when
// the middleware did not run.
func IsBot(ctx *gin.Context) bool {
	if v, ok := ctx.Get(ContextBotKey); ok {
		b, _ := v.(bool)
		return b
	}
	return isBot(ctx)
}

func isBot(ctx *gin.Context) bool {
	ua := strings.ToLower(ctx.Request.UserAgent())

	// Empty UA is suspicious
	if ua == "" {
		return true
	}
	for _, pattern := range botPatterns {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	// Very short UA strings and missing Accept-Language rarely come from
	// real browsers.
	if len(ua) < 20 {
		return true
	}
	if ctx.GetHeader("Accept-Language") == "" {
		return true
	}
	return false
}
