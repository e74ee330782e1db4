package helpers

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func EscapeMarkdownV2(text string) string {
	charactersToEscape := []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

	for _, char := range charactersToEscape {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS renders a price with thousands separators, precision scaled to the magnitude.
func FormatPriceUS(price float64, escapeMarkdown bool) string {
	decimals := 6

	if price >= 1000 {
		decimals = 2
	} else if price > 1.2 {
		decimals = 4
	} else if price < 0.00001 {
		decimals = 8
	}

	p := message.NewPrinter(language.English)
	formatted := p.Sprintf("%.*f", decimals, price)

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}

// FormatPrice renders an optional price the way the widget does: $x.xxxx or N/A.
func FormatPrice(price *float64) string {
	if price == nil || math.IsNaN(*price) {
		return "N/A"
	}
	return fmt.Sprintf("$%.4f", *price)
}

// FormatChange renders a 24h change with an explicit sign, e.g. +3.25% (24h).
func FormatChange(change *float64) string {
	if change == nil || math.IsNaN(*change) {
		return "N/A"
	}
	sign := ""
	if *change >= 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%% (24h)", sign, *change)
}

// FormatAgo renders t relative to now ("4 minutes ago"); never for a nil time.
func FormatAgo(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}
