package notify

import (
	"fmt"
	"strings"
	"time"

	"sentiment-alerts/internal/market"
)

// Supported rendering languages.
const (
	LangEnglish = "en"
	LangChinese = "zh"
)

// NormalizeLanguage maps a subscriber preference to a supported language.
func NormalizeLanguage(lang, fallback string) string {
	switch strings.ToLower(lang) {
	case LangEnglish, LangChinese:
		return strings.ToLower(lang)
	default:
		if fallback == LangChinese {
			return LangChinese
		}
		return LangEnglish
	}
}

var classificationLabels = map[string]map[market.Classification]string{
	LangEnglish: {
		market.ExtremeFear:  "Extreme Fear",
		market.Fear:         "Fear",
		market.Neutral:      "Neutral",
		market.Greed:        "Greed",
		market.ExtremeGreed: "Extreme Greed",
	},
	LangChinese: {
		market.ExtremeFear:  "极度恐慌",
		market.Fear:         "恐慌",
		market.Neutral:      "中性",
		market.Greed:        "贪婪",
		market.ExtremeGreed: "极度贪婪",
	},
}

var classificationEmoji = map[market.Classification]string{
	market.ExtremeFear:  "😱",
	market.Fear:         "😨",
	market.Neutral:      "😐",
	market.Greed:        "🤑",
	market.ExtremeGreed: "🔥",
}

// ClassificationLabel returns the localized rating text.
func ClassificationLabel(c market.Classification, lang string) string {
	labels, ok := classificationLabels[lang]
	if !ok {
		labels = classificationLabels[LangEnglish]
	}
	if label, ok := labels[c]; ok {
		return label
	}
	return string(c)
}

// DailyMessage renders the scheduled daily notification.
func DailyMessage(snap market.Snapshot, lang string, now time.Time) string {
	b := strings.Builder{}

	if lang == LangChinese {
		b.WriteString("🌅 *每日市场情绪报告*\n")
		b.WriteString(fmt.Sprintf("📅 %s\n\n", now.Format("2006年01月02日")))
	} else {
		b.WriteString("🌅 *Daily Market Sentiment Report*\n")
		b.WriteString(fmt.Sprintf("📅 %s\n\n", now.Format("January 2, 2006")))
	}

	b.WriteString(IndexMessage(snap, lang))
	return b.String()
}

// IndexMessage renders the index body shared by daily and on-demand surfaces.
func IndexMessage(snap market.Snapshot, lang string) string {
	b := strings.Builder{}
	label := ClassificationLabel(snap.Classification, lang)
	emoji := classificationEmoji[snap.Classification]

	if lang == LangChinese {
		b.WriteString(fmt.Sprintf("%s *恐慌贪婪指数: %d* (%s)\n", emoji, snap.Value, label))
	} else {
		b.WriteString(fmt.Sprintf("%s *Fear & Greed Index: %d* (%s)\n", emoji, snap.Value, label))
	}

	writeHistoryLine := func(labelEn, labelZh string, v *int) {
		if v == nil {
			return
		}
		if lang == LangChinese {
			b.WriteString(fmt.Sprintf("• %s: %d\n", labelZh, *v))
		} else {
			b.WriteString(fmt.Sprintf("• %s: %d\n", labelEn, *v))
		}
	}
	writeHistoryLine("Previous close", "昨日收盘", snap.PreviousClose)
	writeHistoryLine("1 week ago", "一周前", snap.WeekAgo)
	writeHistoryLine("1 month ago", "一个月前", snap.MonthAgo)
	writeHistoryLine("1 year ago", "一年前", snap.YearAgo)

	if lang == LangChinese {
		b.WriteString(fmt.Sprintf("\n数据来源: %s\n", snap.Source))
		b.WriteString(fmt.Sprintf("更新时间: %s UTC\n", snap.ObservedAt.UTC().Format("2006-01-02 15:04")))
		if snap.Stale {
			b.WriteString("\n⚠️ 数据源暂时不可用，以上为缓存数据。\n")
		}
	} else {
		b.WriteString(fmt.Sprintf("\nSource: %s\n", snap.Source))
		b.WriteString(fmt.Sprintf("Updated: %s UTC\n", snap.ObservedAt.UTC().Format("2006-01-02 15:04")))
		if snap.Stale {
			b.WriteString("\n⚠️ Live data is temporarily unavailable; this is the most recent cached reading.\n")
		}
	}

	return b.String()
}

// UnavailableMessage is shown when no snapshot exists within even the stale
// window. Subscribers must never see a zero or default index value.
func UnavailableMessage(lang string) string {
	if lang == LangChinese {
		return "⚠️ 市场情绪数据暂时不可用，请稍后再试。"
	}
	return "⚠️ Market sentiment data is temporarily unavailable. Please try again later."
}

// TestMessage is the operator-triggered test notification body.
func TestMessage(lang string) string {
	if lang == LangChinese {
		return "🧪 *测试通知*\n\n这是一条来自恐慌贪婪指数服务的测试消息。"
	}
	return "🧪 *Test Notification*\n\nThis is a test message from the Fear & Greed Index service."
}
