package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"signalCopyBot/internal/ports"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

const promptTemplate = `Convert this trading message into a normalized JSON signal. Extract ONLY what the message states.

Rules:
1. author: the name of the person who wrote the signal when explicitly mentioned, otherwise "DEFAULT_AUTHOR".
2. symbol: the traded instrument, e.g. XAUUSD, EURUSD, GBPUSD.
3. sens: "BUY" or "SELL". buy/long map to BUY, sell/short map to SELL. If no keyword exists, infer it from
   the entries, targets and stop; if that is impossible return "None".
4. entries: for a range such as "3279-76", "3385-87" or "3355 3357" return [min, max] ascending, where
   "3279-76" means min 3276 and max 3279. For a single price return [price].
5. sl: the stop loss as written, always positive. A partial value such as "sl 70" is the tens digits and
   must be completed to the number nearest the entry (3270 for entry 3279).
6. tps: every take profit in order, always positive. "open" stays the string "open". Partial values are
   completed like the stop. If targets are given as pips ("TP 20 40 60 80 100 PIPS OPEN"), ignore them and
   return four targets at entry +/- stop distance x 0.5, 1, 1.5 and 3 (plus for BUY, minus for SELL).

Strict output format, JSON only:
{"author": "string", "symbol": "string", "sens": "BUY"|"SELL", "entries": [number], "sl": number|string, "tps": [number|string]}

Message:
%s

Message author: %s
`

// Config holds the Gemini client settings.
type Config struct {
	APIKey string
	Model  string
	Logger ports.Logger
}

// Oracle asks a Gemini model to extract a signal record from free text.
type Oracle struct {
	client *genai.Client
	model  *genai.GenerativeModel
	name   string
	logger ports.Logger
}

// New creates the Gemini client. A missing key yields ErrOracleUnavailable so callers can
// run without the fallback.
func New(ctx context.Context, cfg Config) (*Oracle, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for gemini oracle")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not configured", ports.ErrOracleUnavailable)
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client failed: %w: %w", ports.ErrOracleUnavailable, err)
	}
	model := client.GenerativeModel(name)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	return &Oracle{client: client, model: model, name: name, logger: cfg.Logger}, nil
}

// Extract returns the model's raw reply for the message.
func (o *Oracle) Extract(ctx context.Context, text, author string) (string, error) {
	op := "GeminiExtract"
	o.logger.Debug(ctx, op+": Calling model", map[string]interface{}{"model": o.name, "author": author})

	resp, err := o.model.GenerateContent(ctx, genai.Text(BuildPrompt(text, author)))
	if err != nil {
		return "", fmt.Errorf("%s failed: %w: %w", op, ports.ErrOracleUnavailable, err)
	}
	reply := replyText(resp)
	if reply == "" {
		return "", fmt.Errorf("%s failed: %w: empty reply", op, ports.ErrOracleUnavailable)
	}
	return reply, nil
}

// Close releases the underlying client.
func (o *Oracle) Close() error {
	return o.client.Close()
}

// BuildPrompt fills the extraction prompt.
func BuildPrompt(text, author string) string {
	return fmt.Sprintf(promptTemplate, text, author)
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}
