package captcha

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	msgLabel         = "Captcha"
	msgPlaceholder   = "Enter the captcha"
	msgClickRefresh  = "Click to refresh the captcha"
	msgRefresh       = "Refresh"
	msgLoadFailed    = "Captcha failed to load"
	msgUnsupported   = "Unsupported captcha provider: %s"
	msgMissingConfig = "Captcha configuration missing"
)

var zhHans = map[string]string{
	msgLabel:         "验证码",
	msgPlaceholder:   "输入验证码",
	msgClickRefresh:  "点击刷新验证码",
	msgRefresh:       "刷新",
	msgLoadFailed:    "验证码加载失败",
	msgUnsupported:   "不支持的验证码 provider：%s",
	msgMissingConfig: "验证码配置缺失",
}

var supportedLanguages = []language.Tag{language.English, language.SimplifiedChinese}

var messages = newMessageCatalog()

func newMessageCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, zh := range zhHans {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.SimplifiedChinese, key, zh)
	}
	return b
}

// newPrinter returns a printer for the closest supported language.
func newPrinter(tag language.Tag) *message.Printer {
	_, idx, _ := language.NewMatcher(supportedLanguages).Match(tag)
	return message.NewPrinter(supportedLanguages[idx], message.Catalog(messages))
}
