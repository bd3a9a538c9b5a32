package flow

import (
	"fmt"
	"strings"

	"github.com/m3rciful/currencybot/currency/catalog"
	"github.com/m3rciful/currencybot/currency/rates"
)

const (
	textWelcome = "💰 *Welcome to Currency Converter Bot*\nWhat would you like to do?"
	textHelp    = "🛠 *Help Center*\n\n" +
		"This bot converts between different currencies using real-time exchange rates.\n\n" +
		"🔹 *How to Use*\n" +
		"1. Select source currency\n" +
		"2. Choose target currency\n" +
		"3. Enter the amount\n" +
		"4. Get your conversion result\n\n" +
		"You can restart the process anytime."

	textStepOne        = "🔹 *Step 1/3*\nSelect source currency:"
	textChooseKeyboard = "Choose from the keyboard below:"
	textSelectTarget   = "Now select target currency:"
	textEnterAmount    = "💵 Enter amount to convert:"
	textPickFromKB     = "⚠️ Please select a currency from the keyboard"
	textAmountPositive = "❌ Amount must be greater than 0"
	textAmountInvalid  = "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."
	textFetching       = "⏳ Fetching exchange rates..."
	textConvertAgain   = "🔄 Convert another amount?"
	textLookupFailed   = "⚠️ Failed to get exchange rates. Please try again later.\nYou can /start a new conversion."
	textRestarting     = "🔄 Starting new conversion..."
	textGoodbye        = "✨ Thank you for using the bot!\nClick below to begin again."

	// TextUnexpectedError is shown when a handler fails for a reason the user cannot fix.
	TextUnexpectedError = "⚠️ An unexpected error occurred. Please try again later."
)

var (
	startMenu = &Keyboard{Inline: [][]Button{
		{{Text: "🚀 Start Conversion", Data: ActionStartConversion}},
		{{Text: "ℹ️ Help", Data: ActionHelp}},
	}}
	helpMenu = &Keyboard{Inline: [][]Button{
		{{Text: "📚 See Supported Currencies", Data: ActionShowCurrencies}},
		{{Text: "🔄 Start Conversion", Data: ActionStartConversion}},
		{{Text: "🔙 Back to Start", Data: ActionBackToStart}},
	}}
	supportMenu = &Keyboard{Inline: [][]Button{
		{{Text: "🔄 Start Conversion", Data: ActionStartConversion}},
		{{Text: "🔙 Back to Start", Data: ActionBackToStart}},
	}}
	restartMenu = &Keyboard{Inline: [][]Button{
		{{Text: "✅ Yes, restart", Data: ActionYes}},
		{{Text: "❌ No, exit", Data: ActionNo}},
	}}
	goodbyeMenu = &Keyboard{Inline: [][]Button{
		{{Text: "🚀 Start New Conversion", Data: ActionStartConversion}},
	}}
	removeKeyboard = &Keyboard{Remove: true}
)

func currencyList(c *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("🌍 *Supported Currencies*\n\n")
	for i, cur := range c.All() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s (%s)", cur.Label, cur.Code)
	}
	b.WriteString("\n\nSelect from the keyboard when converting.")
	return b.String()
}

func conversionResult(c *catalog.Catalog, conv rates.Conversion) string {
	return fmt.Sprintf("🔀 *Conversion Result*\n`%s %s = %s %s`\n\n📊 Exchange Rate:\n`1 %s = %s %s`",
		rates.FormatMoney(conv.Amount), c.Label(conv.Source),
		rates.FormatMoney(conv.Result), c.Label(conv.Target),
		conv.Source, rates.FormatRate(conv.Rate), conv.Target,
	)
}
