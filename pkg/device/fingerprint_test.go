package device

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const (
	chromeLinux = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iphone      = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

func TestResolveDesktop(t *testing.T) {
	fp := Resolve("10.0.0.1", chromeLinux)
	assert.Equal(t, "10.0.0.1", fp.IP)
	assert.Equal(t, chromeLinux, fp.UserAgent)
	assert.True(t, strings.HasPrefix(fp.Browser, "Chrome"))
	assert.Equal(t, ClassDesktop, fp.DeviceClass)
}

func TestResolveMobile(t *testing.T) {
	fp := Resolve("10.0.0.2", iphone)
	assert.Equal(t, ClassMobile, fp.DeviceClass)
}

func TestResolveEmptyUserAgent(t *testing.T) {
	fp := Resolve("10.0.0.3", "  ")
	assert.Equal(t, "", fp.UserAgent)
	assert.Equal(t, ClassUnknown, fp.DeviceClass)
	assert.Equal(t, ClassUnknown, fp.Browser)
}

func TestResolveTruncatesUserAgent(t *testing.T) {
	fp := Resolve("10.0.0.4", strings.Repeat("a", 2*maxUserAgentLength))
	assert.Len(t, fp.UserAgent, maxUserAgentLength)
}

func TestFromRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:5000"
	req.Header.Set("User-Agent", chromeLinux)
	c.Request = req

	fp := FromRequest(c)
	assert.Equal(t, "192.168.1.9", fp.IP)
	assert.Equal(t, chromeLinux, fp.UserAgent)
}

func TestResolveTruncatesOnRuneBoundary(t *testing.T) {
	// 1 + 2*300 bytes: the byte cut lands inside an "é"
	fp := Resolve("10.0.0.4", "a"+strings.Repeat("é", 300))
	assert.True(t, utf8.ValidString(fp.UserAgent))
	assert.Len(t, fp.UserAgent, maxUserAgentLength-1)

	fp = Resolve("10.0.0.4", "Mozilla/5.0 \xff\xfe")
	assert.True(t, utf8.ValidString(fp.UserAgent))
	assert.Equal(t, "Mozilla/5.0 ", fp.UserAgent)
}
