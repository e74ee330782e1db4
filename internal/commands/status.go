package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/alert"
	"spot-price-alerts/lib/helpers"
	"spot-price-alerts/lib/translation"
)

// CommandStatus renders the latest observation and alert state as MarkdownV2.
func CommandStatus(st alert.Status, now time.Time) string {
	log.Debugf("processing command /status for %s", st.Instrument)

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", helpers.EscapeMarkdownV2(translation.Translate("%s status", st.Instrument)))

	price := helpers.FormatPrice(st.Observation.Price)
	if st.Observation.Price != nil {
		price = "$" + helpers.FormatPriceUS(*st.Observation.Price, false)
	}
	fmt.Fprintf(&b, "▫️%s `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Price:")), helpers.EscapeMarkdownV2(price))
	fmt.Fprintf(&b, "▫️%s `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Change:")), helpers.EscapeMarkdownV2(helpers.FormatChange(st.Observation.ChangePercent24h)))
	fmt.Fprintf(&b, "▫️%s %s\n", helpers.EscapeMarkdownV2(translation.Translate("Last check:")), helpers.EscapeMarkdownV2(helpers.FormatAgo(st.LastCycleAt, now)))

	slots := make([]string, 0, len(st.Ledger))
	for slot := range st.Ledger {
		slots = append(slots, string(slot))
	}
	sort.Strings(slots)

	for _, slot := range slots {
		state := st.Ledger[alert.Slot(slot)]
		line := fmt.Sprintf("%s: %s, %s", slot, state.Kind(), helpers.FormatAgo(state.LastAlertAt, now))
		if state.LastThreshold != nil {
			line += fmt.Sprintf(" @ $%.2f", *state.LastThreshold)
		}
		fmt.Fprintf(&b, "\n▫️%s", helpers.EscapeMarkdownV2(line))
	}

	fmt.Fprintf(&b, "\n\n%s", helpers.EscapeMarkdownV2(translation.Translate("%d checks, %d alerts sent", st.Cycles, st.AlertsSent)))
	return b.String()
}

// CommandAlerts lists the configured rules as MarkdownV2.
func CommandAlerts(cfg alert.Config) string {
	log.Debug("processing command /alerts")

	onOff := func(enabled bool) string {
		if enabled {
			return translation.Translate("on")
		}
		return translation.Translate("off")
	}

	lines := []string{
		translation.Translate("Alerts: %s", onOff(cfg.Enabled)),
		translation.Translate("Price band: %s, below $%.2f or above $%.2f", onOff(cfg.Price.Enabled), cfg.Price.Lower, cfg.Price.Upper),
		translation.Translate("24h change: %s, %+.2f%% / %+.2f%%", onOff(cfg.Change.Enabled), cfg.Change.Positive, cfg.Change.Negative),
		translation.Translate("Cooldown: %s", cfg.Cooldown),
		translation.Translate("Isolation: %s", isolationName(cfg.Isolation)),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", helpers.EscapeMarkdownV2(translation.Translate("%s alerts", cfg.Instrument)))
	for _, line := range lines {
		fmt.Fprintf(&b, "\n▫️%s", helpers.EscapeMarkdownV2(line))
	}
	return b.String()
}

func isolationName(i alert.Isolation) string {
	if i == "" {
		return string(alert.IsolationShared)
	}
	return string(i)
}

// CommandSource names the price source feeding the alerts.
func CommandSource(sourceKind, instrumentID string) string {
	return helpers.EscapeMarkdownV2(translation.Translate("Prices from %s (%s)", sourceKind, instrumentID))
}
