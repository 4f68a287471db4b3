package coordinator

import (
	"fmt"
	"html"
	"strings"

	"github.com/shepherdwind/bean-talk/internal/model"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// Callback prefixes. Callback data is "<prefix>:<short id>[:<choice>]".
const (
	callbackCategorize = "cm"
	callbackSelect     = "sc"
	callbackCancel     = "cc"
)

// Suggestion choices carried in select callbacks.
const (
	choicePrimary     = "primary"
	choiceAlternative = "alternative"
	choiceSuggested   = "suggested"
)

const (
	msgHelp = "<b>bean-talk</b>\n\n" +
		"I record bank alerts into your ledger and ask you about merchants I do not know yet.\n\n" +
		"/add &lt;amount&gt; &lt;description&gt; - record a cash bill\n" +
		"/check - scan the mailbox now\n" +
		"/report [days] - spending by account\n" +
		"/status - pending categorizations\n" +
		"/cancel - stop the current conversation"
	msgCategorizationPrompt = "Describe <b>%s</b> in a few words (for example \"coffee shop\" or \"software subscription\") " +
		"and I will suggest categories. Send /cancel to skip it."
	msgAnalyzing          = "Analyzing merchant..."
	msgChooseCategory     = "Choose a category for <b>%s</b>:"
	msgCategorySelected   = "Category for <b>%s</b> set to <code>%s</code>."
	msgCancelled          = "Categorization of <b>%s</b> cancelled."
	msgNothingToCancel    = "Nothing to cancel."
	msgExpired            = "This categorization request is no longer pending."
	msgSuggestionFailed   = "Sorry, I could not analyze this merchant. Send another description or /cancel."
	msgIdleHint           = "Send /help to see what I can do."
	msgBillPrompt         = "Send the bill as <code>&lt;amount&gt; &lt;description&gt;</code>, e.g. <code>12.50 lunch at hawker</code>."
	msgBillRecorded       = "Recorded %s for <b>%s</b> under <code>%s</code>."
	msgBillFailed         = "Could not record the bill. Please try again."
	msgScanFinished       = "Scan finished: %d recorded, %d waiting for a category, %d failed."
	msgScanFailed         = "Mailbox scan failed, see logs for details."
	msgReportEmpty        = "No spending recorded in the last %d days."
	msgReportUnavailable  = "Reports are not available."
	msgStatusIdle         = "No merchants waiting for a category."
	msgStatusQueue        = "%d merchant(s) waiting for a category. Now asking about <b>%s</b>."
	msgStatusNext         = "Next: %s"
	labelCategorizeWithAI = "Categorize with AI"
	labelSkip             = "Skip"
	labelCancel           = "Cancel"
)

func renderNotification(ev model.MerchantNeedsCategorization, mention string) string {
	var b strings.Builder
	b.WriteString("<b>New Merchant Needs Categorization</b>\n")
	if mention != "" {
		b.WriteString(html.EscapeString(mention))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Merchant: <b>%s</b>\n", html.EscapeString(ev.Merchant))
	if ev.Amount != nil {
		fmt.Fprintf(&b, "Amount: <b>%s</b>\n", html.EscapeString(ev.Amount.Display()))
	}
	if !ev.Timestamp.IsZero() {
		fmt.Fprintf(&b, "Time: <b>%s</b>\n", ev.Timestamp.Format("2006-01-02 15:04"))
	}
	b.WriteString("\nReply with a short description of this merchant, or use the buttons below.")
	return b.String()
}

func promptButtons(short string) [][]service.Button {
	return [][]service.Button{{
		{Text: labelCategorizeWithAI, Data: callbackCategorize + ":" + short},
		{Text: labelSkip, Data: callbackCancel + ":" + short},
	}}
}

func suggestionButtons(short string, s *service.Suggestion) [][]service.Button {
	var rows [][]service.Button
	add := func(label, category, choice string) {
		if strings.TrimSpace(category) == "" {
			return
		}
		rows = append(rows, []service.Button{{
			Text: label + ": " + category,
			Data: callbackSelect + ":" + short + ":" + choice,
		}})
	}
	add("Primary", s.Primary, choicePrimary)
	add("Alternative", s.Alternative, choiceAlternative)
	add("New", s.Suggested, choiceSuggested)
	rows = append(rows, []service.Button{{Text: labelCancel, Data: callbackCancel + ":" + short}})
	return rows
}

func pickSuggestion(s *service.Suggestion, choice string) string {
	if s == nil {
		return ""
	}
	switch choice {
	case choicePrimary:
		return s.Primary
	case choiceAlternative:
		return s.Alternative
	case choiceSuggested:
		return s.Suggested
	default:
		return ""
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}
