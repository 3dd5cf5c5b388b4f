package device

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mssola/useragent"

	"github.com/noah-isme/campus-admin-api/internal/models"
)

// Device classes reported in fingerprints.
const (
	ClassDesktop = "desktop"
	ClassMobile  = "mobile"
	ClassTablet  = "tablet"
	ClassBot     = "bot"
	ClassUnknown = "unknown"
)

const maxUserAgentLength = 512

// Resolve builds a fingerprint from the client address and raw User-Agent header.
func Resolve(ip, userAgent string) models.DeviceFingerprint {
	userAgent = strings.ToValidUTF8(strings.TrimSpace(userAgent), "")
	if len(userAgent) > maxUserAgentLength {
		// the cut may split a multi-byte rune; drop the partial tail
		userAgent = strings.ToValidUTF8(userAgent[:maxUserAgentLength], "")
	}
	fp := models.DeviceFingerprint{
		IP:          ip,
		UserAgent:   userAgent,
		Browser:     ClassUnknown,
		OS:          ClassUnknown,
		DeviceClass: ClassUnknown,
	}
	if userAgent == "" {
		return fp
	}

	ua := useragent.New(userAgent)
	if name, version := ua.Browser(); name != "" {
		fp.Browser = strings.TrimSpace(name + " " + version)
	}
	if os := ua.OS(); os != "" {
		fp.OS = os
	}
	fp.DeviceClass = classify(ua, userAgent)
	return fp
}

// FromRequest resolves the fingerprint of the current gin request.
func FromRequest(c *gin.Context) models.DeviceFingerprint {
	return Resolve(c.ClientIP(), c.GetHeader("User-Agent"))
}

func classify(ua *useragent.UserAgent, raw string) string {
	switch {
	case ua.Bot():
		return ClassBot
	case strings.Contains(strings.ToLower(raw), "ipad"), strings.Contains(strings.ToLower(raw), "tablet"):
		return ClassTablet
	case ua.Mobile():
		return ClassMobile
	default:
		return ClassDesktop
	}
}
