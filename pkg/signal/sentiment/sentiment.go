// Package sentiment rates recent headlines for an instrument with an LLM
// and exposes the result as an external signal.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/collection"

	"autopilot-engine/pkg/llm"
	"autopilot-engine/pkg/prompt"
	"autopilot-engine/pkg/signal"
)

const (
	// TypeName is the signal source type registered by this package.
	TypeName = "sentiment"

	defaultCacheTTL = 15 * time.Minute
	defaultTimeout  = 20 * time.Second
	contextBars     = 20
)

const defaultPrompt = `Rate the near-term market sentiment for {{upper .Instrument}}.
{{- if .Closes}}
Recent closes (oldest first): {{range $i, $c := .Closes}}{{if $i}}, {{end}}{{fixed 2 $c}}{{end}}
Change over window: {{pct .Change}}
{{- end}}
Headlines:
{{- range .Headlines}}
- {{.}}
{{- end}}
Answer with a score between -1 (strongly bearish) and 1 (strongly bullish).`

const systemPrompt = "You are a cautious market analyst. Reply only with the requested JSON object."

// Rating is the structured answer requested from the model.
type Rating struct {
	Score     float64 `json:"score" description:"sentiment between -1 (bearish) and 1 (bullish)"`
	Rationale string  `json:"rationale,omitempty" description:"one sentence justification"`
}

// Provider implements signal.Provider.
type Provider struct {
	name      string
	weight    float64
	model     string
	timeout   time.Duration
	headlines map[string][]string
	client    llm.ChatClient
	tmpl      *prompt.Template
	series    signal.SeriesSource
	interval  string
	cache     *collection.Cache
	now       func() time.Time
}

// Options configures a Provider.
type Options struct {
	Name      string
	Weight    float64
	Model     string
	Timeout   time.Duration
	CacheTTL  time.Duration
	Headlines map[string][]string
	// Template overrides the built-in prompt.
	Template *prompt.Template
	Series   signal.SeriesSource
	Interval string
}

// New builds a Provider around client.
func New(client llm.ChatClient, opts Options) (*Provider, error) {
	if client == nil {
		return nil, errors.New("sentiment: llm client is required")
	}
	tmpl := opts.Template
	if tmpl == nil {
		var err error
		if tmpl, err = prompt.Parse("sentiment", defaultPrompt, nil); err != nil {
			return nil, fmt.Errorf("sentiment: parse prompt: %w", err)
		}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := collection.NewCache(ttl, collection.WithName("sentiment"))
	if err != nil {
		return nil, fmt.Errorf("sentiment: cache: %w", err)
	}
	headlines := make(map[string][]string, len(opts.Headlines))
	for k, v := range opts.Headlines {
		headlines[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	name := opts.Name
	if name == "" {
		name = TypeName
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Provider{
		name:      name,
		weight:    opts.Weight,
		model:     opts.Model,
		timeout:   timeout,
		headlines: headlines,
		client:    client,
		tmpl:      tmpl,
		series:    opts.Series,
		interval:  opts.Interval,
		cache:     cache,
		now:       time.Now,
	}, nil
}

func (p *Provider) Name() string { return p.name }

// Read implements signal.Provider. Instruments without headlines read as
// unavailable without calling the model. Successful ratings are cached.
func (p *Provider) Read(ctx context.Context, instrument string) (signal.Reading, error) {
	key := strings.ToUpper(strings.TrimSpace(instrument))
	if cached, ok := p.cache.Get(key); ok {
		return cached.(signal.Reading), nil
	}
	lines := p.headlines[key]
	if len(lines) == 0 {
		return signal.Unavailable(p.name, p.weight, "no headlines"), nil
	}

	text, err := p.tmpl.Render(p.promptData(key, lines))
	if err != nil {
		return signal.Reading{Weight: p.weight}, fmt.Errorf("sentiment: render prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var rating Rating
	req := &llm.ChatRequest{
		Model: p.model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	}
	if err := p.client.ChatStructured(ctx, req, &rating); err != nil {
		return signal.Reading{Weight: p.weight}, fmt.Errorf("sentiment: %s: %w", key, err)
	}

	reading := signal.Reading{
		Source:    p.name,
		Strength:  signal.Clamp(rating.Score),
		Available: true,
		Weight:    p.weight,
		Detail:    strings.TrimSpace(rating.Rationale),
		At:        p.now(),
	}
	p.cache.Set(key, reading)
	return reading, nil
}

type promptData struct {
	Instrument string
	Headlines  []string
	Closes     []float64
	Change     float64
}

func (p *Provider) promptData(instrument string, lines []string) promptData {
	data := promptData{Instrument: instrument, Headlines: lines}
	if p.series == nil {
		return data
	}
	s, ok := p.series.Get(instrument, p.interval)
	if !ok || s.Len() == 0 {
		return data
	}
	tail := s.Tail(contextBars)
	data.Closes = tail.Closes()
	if first := data.Closes[0]; first != 0 {
		data.Change = data.Closes[len(data.Closes)-1]/first - 1
	}
	return data
}

func init() {
	signal.Register(TypeName, func(cfg signal.SourceConfig, deps signal.Deps) (signal.Provider, error) {
		var tmpl *prompt.Template
		if cfg.PromptFile != "" {
			var err error
			if tmpl, err = prompt.NewTemplate(cfg.PromptFile, nil); err != nil {
				return nil, err
			}
		}
		return New(deps.LLM, Options{
			Name:      cfg.Name,
			Weight:    cfg.Weight,
			Model:     cfg.Model,
			Timeout:   cfg.Timeout,
			CacheTTL:  cfg.CacheTTL,
			Headlines: cfg.Headlines,
			Template:  tmpl,
			Series:    deps.Series,
			Interval:  deps.Interval,
		})
	})
}
