package notifier

import (
	"fmt"
	"html"
	"strings"

	"sjsage522/teetimeworker/internal/crawler"
)

// FormatReport renders the target dates of a report as a Telegram HTML message
func FormatReport(report crawler.AvailabilityReport, siteName, bookingURL string) string {
	var msg strings.Builder

	rc := report.RunContext
	msg.WriteString(fmt.Sprintf("🏌️ <b>%s 예약 알림</b>\n\n", html.EscapeString(siteName)))
	msg.WriteString(fmt.Sprintf("<b>%d년 %d월</b>에 다음 날짜에 예약이 가능합니다 (%d일):\n\n",
		rc.Year, int(rc.Month), len(report.Target)))

	for _, date := range report.Target {
		msg.WriteString(fmt.Sprintf("• <b>%s</b>\n", date.String()))

		slots := report.SlotsFor(date)
		if len(slots) == 0 {
			continue
		}
		msg.WriteString("   <u>이용 가능 시간</u>\n")
		for _, slot := range slots {
			msg.WriteString(fmt.Sprintf("   - %s\n", html.EscapeString(slot.String())))
		}
	}

	if bookingURL != "" {
		msg.WriteString(fmt.Sprintf("\n🔗 예약 페이지: <a href=\"%s\">바로가기</a>\n", html.EscapeString(bookingURL)))
	}
	msg.WriteString(fmt.Sprintf("🕒 확인 시각: %s", report.CheckedAt.Format("2006-01-02 15:04:05")))

	return msg.String()
}
