// Package coordinator holds process-wide startup glue that doesn't belong
// to any single subsystem: today, just the startup announcement
// (original_source's checker.py send_start_msg).
package coordinator

import (
	"fmt"
	"sort"
	"strings"

	"listing-sniper/internal/chatlog"
	"listing-sniper/internal/common"
	"listing-sniper/internal/config"
	"listing-sniper/internal/trade"
	"listing-sniper/internal/trigger"
)

// AnnounceStartup builds and enqueues the one-time startup summary: enabled
// phone accounts, trade accounts per exchange, trigger parts and their buy
// amounts per exchange, the global exclusion set, and the configured
// markup/cancel-delay (§9 supplemented feature 3).
func AnnounceStartup(cfg *config.Config, tradeMgr *trade.Manager, triggerMgr *trigger.Manager, log *chatlog.Queue) {
	var sb strings.Builder
	sb.WriteString("Bot started.\n\n")

	fmt.Fprintf(&sb, "<b>Enabled phone accounts:</b> %s\n\n", strings.Join(tradeMgr.CallerAccountNames(), ", "))

	sb.WriteString("<b>Enabled trade accounts:</b>\n")
	exchanges := tradeMgr.Exchanges()
	sort.Slice(exchanges, func(i, j int) bool { return exchanges[i].Name() < exchanges[j].Name() })
	for _, e := range exchanges {
		owners := make([]string, 0, len(e.Accounts()))
		for _, a := range e.Accounts() {
			owners = append(owners, a.Owner())
		}
		fmt.Fprintf(&sb, "<code> %s: </code>%s\n", capitalize(e.Name()), strings.Join(owners, ", "))
	}

	sb.WriteString("\n<b>Enabled trigger parts:</b>\n")
	triggerExchanges := triggerMgr.Exchanges()
	sort.Slice(triggerExchanges, func(i, j int) bool { return triggerExchanges[i].Name() < triggerExchanges[j].Name() })
	for _, e := range triggerExchanges {
		amounts := make([]string, 0, len(e.BuyAmounts()))
		for k, v := range e.BuyAmounts() {
			amounts = append(amounts, fmt.Sprintf("%s: %d%%", k, v))
		}
		sort.Strings(amounts)

		sources := make([]string, 0, len(e.PartSources()))
		for _, s := range e.PartSources() {
			sources = append(sources, string(s))
		}

		fmt.Fprintf(&sb, "<code> %s(%s): </code>%s\n", capitalize(e.Name()), strings.Join(amounts, ", "), strings.Join(sources, ", "))
	}

	excluded := make([]string, 0, len(common.ExcludedCoins))
	for c := range common.ExcludedCoins {
		excluded = append(excluded, c)
	}
	sort.Strings(excluded)
	fmt.Fprintf(&sb, "\n<b>Ignored coins:</b> %s, '%s'\n", strings.Join(excluded, ", "), common.ExcludedRegex.String())

	fmt.Fprintf(&sb, "\n<b>Limit order markup:</b> %d%%\n", cfg.LimitOrderMarkup)
	fmt.Fprintf(&sb, "\n<b>Order cancel delay:</b> %d seconds\n", cfg.OrderCancelDelay)

	if log != nil {
		log.EnqueueSilent(sb.String())
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
