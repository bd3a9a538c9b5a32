package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m3rciful/currencybot/core/telegram/state"
	"github.com/m3rciful/currencybot/currency/catalog"
	"github.com/m3rciful/currencybot/currency/rates"
	"github.com/shopspring/decimal"
)

type stubRates struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (s *stubRates) Rate(_ context.Context, source, target string) (decimal.Decimal, error) {
	s.calls++
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.rate, nil
}

func newMachine(t *testing.T, src rates.Source) (*Machine, state.Store) {
	t.Helper()
	store := state.NewMemoryStore(0)
	m, err := New(Options{Store: store, Rates: src})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return m, store
}

func mustStep(t *testing.T, store state.Store, userID int64, want Step) state.Session {
	t.Helper()
	sess, err := store.Get(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if Step(sess.State) != want {
		t.Fatalf("stored step = %q, want %q", sess.State, want)
	}
	return sess
}

func putStep(t *testing.T, store state.Store, userID int64, step Step, data map[string]string) {
	t.Helper()
	sess := state.NewSession(state.State(step))
	for k, v := range data {
		sess.Set(k, v)
	}
	if err := store.Put(context.Background(), userID, sess); err != nil {
		t.Fatal(err)
	}
}

func onlyText(t *testing.T, out Outcome) string {
	t.Helper()
	if len(out.Messages) != 1 {
		t.Fatalf("messages = %d, want 1: %+v", len(out.Messages), out.Messages)
	}
	return out.Messages[0].Text
}

func TestSelectingEveryPairReachesAmount(t *testing.T) {
	ctx := context.Background()
	all := catalog.Default().All()
	for _, src := range all {
		for _, dst := range all {
			m, store := newMachine(t, &stubRates{})
			const user = 10

			out, err := m.Callback(ctx, user, ActionStartConversion)
			if err != nil || out.Step != StepSourceCurrency {
				t.Fatalf("start_conversion = %+v, %v", out, err)
			}
			out, err = m.Text(ctx, user, src.Label)
			if err != nil || out.Step != StepTargetCurrency {
				t.Fatalf("%s: source step = %+v, %v", src.Code, out.Step, err)
			}
			out, err = m.Text(ctx, user, dst.Label)
			if err != nil || out.Step != StepAmount {
				t.Fatalf("%s->%s: target step = %+v, %v", src.Code, dst.Code, out.Step, err)
			}
			sess := mustStep(t, store, user, StepAmount)
			if sess.Value("source") != src.Code || sess.Value("target") != dst.Code {
				t.Fatalf("session data = %v, want %s->%s", sess.Data, src.Code, dst.Code)
			}
		}
	}
}

func TestStartConversionMessages(t *testing.T) {
	m, _ := newMachine(t, &stubRates{})
	out, err := m.Callback(context.Background(), 1, ActionStartConversion)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("messages = %+v", out.Messages)
	}
	first, second := out.Messages[0], out.Messages[1]
	if !first.Edit || !first.Markdown || first.Text != "🔹 *Step 1/3*\nSelect source currency:" {
		t.Fatalf("first message = %+v", first)
	}
	if second.Edit || second.Keyboard == nil || len(second.Keyboard.Reply) != 3 {
		t.Fatalf("second message = %+v", second)
	}
}

func TestCurrencyMismatchReprompts(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t, &stubRates{})
	putStep(t, store, 3, StepSourceCurrency, nil)

	out, err := m.Text(ctx, 3, "Yen please")
	if err != nil {
		t.Fatal(err)
	}
	if out.Step != StepSourceCurrency || onlyText(t, out) != "⚠️ Please select a currency from the keyboard" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Messages[0].Keyboard == nil || out.Messages[0].Keyboard.Reply == nil {
		t.Fatal("re-prompt must carry the currency keyboard")
	}
	mustStep(t, store, 3, StepSourceCurrency)
}

func TestTargetSelectionRemovesKeyboard(t *testing.T) {
	m, store := newMachine(t, &stubRates{})
	putStep(t, store, 4, StepTargetCurrency, map[string]string{"source": "USD"})
	out, err := m.Text(context.Background(), 4, "🇬🇭 Ghanaian Cedi")
	if err != nil {
		t.Fatal(err)
	}
	if onlyText(t, out) != "💵 Enter amount to convert:" || out.Messages[0].Keyboard == nil || !out.Messages[0].Keyboard.Remove {
		t.Fatalf("outcome = %+v", out.Messages)
	}
}

func TestAmountValidation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"words", "one hundred", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
		{"currency symbol", "$100", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
		{"infinity", "inf", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
		{"zero", "0", "❌ Amount must be greater than 0"},
		{"negative", "-5", "❌ Amount must be greater than 0"},
		{"negative decimal", " -0.01 ", "❌ Amount must be greater than 0"},
		{"tiny exponent", "1e-40000000", "❌ Amount must be greater than 0"},
		{"rounds to zero", "0.004", "❌ Amount must be greater than 0"},
		{"huge exponent", "1e20000000", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
		{"too many integer digits", "1234567890123456", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
		{"too many digits", "1.0000000000000000000000000000001", "❌ Please enter a valid number (e.g., 100 or 50.5)\nDon't include currency symbols."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &stubRates{rate: decimal.NewFromInt(1)}
			m, store := newMachine(t, src)
			putStep(t, store, 5, StepAmount, map[string]string{"source": "USD", "target": "EUR"})

			out, err := m.Text(context.Background(), 5, tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if got := onlyText(t, out); got != tt.want {
				t.Fatalf("message = %q, want %q", got, tt.want)
			}
			if out.Step != StepAmount || out.Convert != nil {
				t.Fatalf("outcome = %+v", out)
			}
			mustStep(t, store, 5, StepAmount)
			if src.calls != 0 {
				t.Fatal("rate source must not be called for invalid input")
			}
		})
	}
}

func TestParseAmountAccepts(t *testing.T) {
	for _, in := range []string{"100", "50.5", "0.005", "1e3", "999999999999999"} {
		amount, msg, ok := ParseAmount(in)
		if !ok || msg != "" || amount.Sign() <= 0 {
			t.Errorf("ParseAmount(%q) = %s, %q, %v", in, amount, msg, ok)
		}
	}
}

func TestConversionResult(t *testing.T) {
	ctx := context.Background()
	src := &stubRates{rate: decimal.RequireFromString("0.92")}
	m, store := newMachine(t, src)
	putStep(t, store, 6, StepAmount, map[string]string{"source": "USD", "target": "EUR"})

	out, err := m.Text(ctx, 6, "100")
	if err != nil {
		t.Fatal(err)
	}
	if onlyText(t, out) != "⏳ Fetching exchange rates..." || out.Convert == nil {
		t.Fatalf("amount outcome = %+v", out)
	}
	if out.Convert.Source != "USD" || out.Convert.Target != "EUR" || !out.Convert.Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("conversion request = %+v", out.Convert)
	}

	res, err := m.Convert(ctx, 6, *out.Convert)
	if err != nil {
		t.Fatal(err)
	}
	if res.Step != StepConfirmRestart || len(res.Messages) != 2 {
		t.Fatalf("result outcome = %+v", res)
	}
	want := "🔀 *Conversion Result*\n`100.00 🇺🇸 US Dollar = 92.00 🇪🇺 Euro`\n\n📊 Exchange Rate:\n`1 USD = 0.9200 EUR`"
	if res.Messages[0].Text != want || !res.Messages[0].Markdown {
		t.Fatalf("result text = %q", res.Messages[0].Text)
	}
	if res.Messages[1].Text != "🔄 Convert another amount?" || len(res.Messages[1].Keyboard.Inline) != 2 {
		t.Fatalf("follow-up = %+v", res.Messages[1])
	}
	mustStep(t, store, 6, StepConfirmRestart)
}

func TestConversionLookupFailure(t *testing.T) {
	failures := []error{
		&rates.LookupError{Source: "USD", Target: "EUR", Kind: rates.KindNetwork, Err: errors.New("dial tcp: refused")},
		&rates.LookupError{Source: "USD", Target: "EUR", Kind: rates.KindMissingRate},
	}
	for _, lookupErr := range failures {
		ctx := context.Background()
		m, store := newMachine(t, &stubRates{err: lookupErr})
		putStep(t, store, 7, StepAmount, map[string]string{"source": "USD", "target": "EUR"})

		out, err := m.Convert(ctx, 7, ConversionRequest{Amount: decimal.NewFromInt(5), Source: "USD", Target: "EUR"})
		if err != nil {
			t.Fatalf("Convert() must not fail on lookup errors: %v", err)
		}
		if !strings.HasPrefix(onlyText(t, out), "⚠️ Failed to get exchange rates.") {
			t.Fatalf("message = %q", out.Messages[0].Text)
		}
		if out.Step != StepAmount {
			t.Fatalf("step = %q, want amount", out.Step)
		}
		mustStep(t, store, 7, StepAmount)
	}
}

func TestConversionUnexpectedError(t *testing.T) {
	m, store := newMachine(t, &stubRates{err: errors.New("boom")})
	putStep(t, store, 8, StepAmount, map[string]string{"source": "USD", "target": "EUR"})
	if _, err := m.Convert(context.Background(), 8, ConversionRequest{Amount: decimal.NewFromInt(1), Source: "USD", Target: "EUR"}); err == nil {
		t.Fatal("expected error for non-lookup failure")
	}
}

func TestStartResetsFromAnyStep(t *testing.T) {
	for _, step := range []Step{StepIdle, StepSourceCurrency, StepTargetCurrency, StepAmount, StepConfirmRestart} {
		t.Run(string(step), func(t *testing.T) {
			m, store := newMachine(t, &stubRates{})
			putStep(t, store, 9, step, map[string]string{"source": "USD", "target": "EUR"})

			out, err := m.Command(context.Background(), 9, "/start")
			if err != nil {
				t.Fatal(err)
			}
			if out.Step != StepIdle || onlyText(t, out) != "💰 *Welcome to Currency Converter Bot*\nWhat would you like to do?" {
				t.Fatalf("outcome = %+v", out)
			}
			sess := mustStep(t, store, 9, StepIdle)
			if len(sess.Data) != 0 {
				t.Fatalf("session data not cleared: %v", sess.Data)
			}
		})
	}
}

func TestRestartConfirmation(t *testing.T) {
	ctx := context.Background()

	t.Run("no", func(t *testing.T) {
		m, store := newMachine(t, &stubRates{})
		putStep(t, store, 11, StepConfirmRestart, map[string]string{"source": "USD", "target": "EUR"})
		out, err := m.Callback(ctx, 11, ActionNo)
		if err != nil {
			t.Fatal(err)
		}
		msg := out.Messages[0]
		if out.Step != StepIdle || !msg.Edit || msg.Keyboard.Inline[0][0].Data != ActionStartConversion {
			t.Fatalf("outcome = %+v", out)
		}
		mustStep(t, store, 11, StepIdle)
	})

	t.Run("yes", func(t *testing.T) {
		m, store := newMachine(t, &stubRates{})
		putStep(t, store, 12, StepConfirmRestart, map[string]string{"source": "USD", "target": "EUR"})
		out, err := m.Callback(ctx, 12, ActionYes)
		if err != nil {
			t.Fatal(err)
		}
		if out.Step != StepSourceCurrency || len(out.Messages) != 2 {
			t.Fatalf("outcome = %+v", out)
		}
		if out.Messages[0].Text != "🔄 Starting new conversion..." || !out.Messages[0].Edit {
			t.Fatalf("first message = %+v", out.Messages[0])
		}
		sess := mustStep(t, store, 12, StepSourceCurrency)
		if sess.Value("source") != "" || sess.Value("target") != "" {
			t.Fatalf("session data not cleared: %v", sess.Data)
		}
	})
}

func TestHelpKeepsStep(t *testing.T) {
	ctx := context.Background()
	m, store := newMachine(t, &stubRates{})
	putStep(t, store, 13, StepTargetCurrency, map[string]string{"source": "USD"})

	out, err := m.Command(ctx, 13, "help")
	if err != nil {
		t.Fatal(err)
	}
	if out.Step != StepTargetCurrency || out.Messages[0].Edit || len(out.Messages[0].Keyboard.Inline) != 3 {
		t.Fatalf("help outcome = %+v", out)
	}

	out, err = m.Callback(ctx, 13, ActionShowCurrencies)
	if err != nil {
		t.Fatal(err)
	}
	text := onlyText(t, out)
	if !strings.Contains(text, "- 🇬🇭 Ghanaian Cedi (GHS)") || !strings.HasPrefix(text, "🌍 *Supported Currencies*") {
		t.Fatalf("currencies text = %q", text)
	}
	mustStep(t, store, 13, StepTargetCurrency)
}

func TestIdleTextIsIgnored(t *testing.T) {
	m, _ := newMachine(t, &stubRates{})
	out, err := m.Text(context.Background(), 14, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if out.Step != StepIdle || len(out.Messages) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestCorruptSessionResets(t *testing.T) {
	tests := []struct {
		name string
		step Step
		data map[string]string
	}{
		{"unknown step", "awaiting_coffee", nil},
		{"amount without currencies", StepAmount, nil},
		{"target with bogus source", StepTargetCurrency, map[string]string{"source": "XXX"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := newMachine(t, &stubRates{})
			putStep(t, store, 15, tt.step, tt.data)
			out, err := m.Text(context.Background(), 15, "100")
			if err != nil {
				t.Fatal(err)
			}
			if out.Step != StepIdle || out.Convert != nil {
				t.Fatalf("outcome = %+v", out)
			}
			mustStep(t, store, 15, StepIdle)
		})
	}
}

func TestUnknownInputs(t *testing.T) {
	m, _ := newMachine(t, &stubRates{})
	if _, err := m.Callback(context.Background(), 1, "launch_rocket"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("Callback() error = %v, want ErrUnknownAction", err)
	}
	if _, err := m.Command(context.Background(), 1, "/stats"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Command() error = %v, want ErrUnknownCommand", err)
	}
}

func TestExactMatchMode(t *testing.T) {
	store := state.NewMemoryStore(0)
	m, err := New(Options{Store: store, Rates: &stubRates{}, MatchMode: catalog.MatchExact})
	if err != nil {
		t.Fatal(err)
	}
	putStep(t, store, 16, StepSourceCurrency, nil)
	out, _ := m.Text(context.Background(), 16, "I like 🇪🇺 Euro")
	if out.Step != StepSourceCurrency {
		t.Fatalf("exact mode accepted a loose label: %+v", out)
	}
	out, _ = m.Text(context.Background(), 16, "eur")
	if out.Step != StepTargetCurrency {
		t.Fatalf("exact mode rejected the ISO code: %+v", out)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Options{Rates: &stubRates{}}); !errors.Is(err, state.ErrNilStore) {
		t.Fatalf("New() without store error = %v", err)
	}
	if _, err := New(Options{Store: state.NewMemoryStore(0)}); err == nil {
		t.Fatal("New() without rate source must fail")
	}
}

func TestStepReportsStoredStep(t *testing.T) {
	m, store := newMachine(t, &stubRates{})
	ctx := context.Background()
	if step, err := m.Step(ctx, 16); err != nil || step != StepIdle {
		t.Fatalf("Step() = %q, %v", step, err)
	}
	putStep(t, store, 16, StepTargetCurrency, map[string]string{keySource: "USD"})
	if step, err := m.Step(ctx, 16); err != nil || step != StepTargetCurrency {
		t.Fatalf("Step() = %q, %v", step, err)
	}
}
