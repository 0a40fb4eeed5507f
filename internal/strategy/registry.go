package strategy

import (
	"fmt"
	"sort"

	"github.com/yanun0323/logs"

	"trader/internal/schema"
)

// DefaultStrategyID is the volume-independent fallback used when a requested
// strategy cannot run against the available data.
const DefaultStrategyID = "bb_squeeze"

// Info is registry metadata about one strategy.
type Info struct {
	ID             string
	Name           string
	Description    string
	Recommended    bool
	RequiresVolume bool
	Schema         ParamSchema
}

// Registry resolves strategies by id and applies volume-fallback logic.
type Registry struct {
	strategies map[string]Strategy
	info       map[string]Info
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		info:       make(map[string]Info),
	}
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MACross{}, "MA Crossover", "short/long SMA crossover", true)
	r.Register(BBSqueeze{}, "Bollinger Squeeze", "volatility expansion after band squeeze", true)
	r.Register(VolumeBreakout{}, "Volume Breakout", "range breakout confirmed by volume", false)
	return r
}

// Register adds a strategy. Re-registering an id overwrites it.
func (r *Registry) Register(s Strategy, name, description string, recommended bool) {
	id := s.ID()
	if _, ok := r.strategies[id]; ok {
		logs.Warnf("strategy %q already registered, overwriting", id)
	}
	r.strategies[id] = s
	r.info[id] = Info{
		ID:             id,
		Name:           name,
		Description:    description,
		Recommended:    recommended,
		RequiresVolume: s.RequiresVolume(),
		Schema:         s.Schema(),
	}
}

// Get returns a strategy by id.
func (r *Registry) Get(id string) (Strategy, error) {
	s, ok := r.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy %q not found, available: %v", id, r.ids())
	}
	return s, nil
}

// List returns metadata for all registered strategies, sorted by id.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.info))
	for _, info := range r.info {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolution is the outcome of Resolve: the strategy to run plus fallback
// provenance when the requested one could not be used. The provenance is
// copied into every SignalResult so downstream trade records see it.
type Resolution struct {
	Strategy Strategy
	Meta     schema.SignalMeta
}

// Resolve picks a strategy for the given window. An empty id selects the
// default. A strategy that requires volume against a window without usable
// volume falls back to the default volume-independent strategy; the fallback
// is recorded, never silent.
func (r *Registry) Resolve(id string, window []schema.Candle) (Resolution, error) {
	requested := id
	if id == "" {
		id = DefaultStrategyID
		logs.Infof("no strategy specified, using default %q", id)
	}
	s, err := r.Get(id)
	if err != nil {
		return Resolution{}, err
	}

	if s.RequiresVolume() && !schema.HasUsableVolume(window) {
		fallback, err := r.Get(DefaultStrategyID)
		if err != nil {
			return Resolution{}, err
		}
		logs.Warnf("strategy %q requires volume data but none found, falling back to %q", id, DefaultStrategyID)
		return Resolution{
			Strategy: fallback,
			Meta: schema.SignalMeta{
				StrategyID:       DefaultStrategyID,
				OriginalStrategy: orDefault(requested, id),
				FallbackStrategy: DefaultStrategyID,
				FallbackReason:   "missing_volume_data",
			},
		}, nil
	}
	return Resolution{Strategy: s, Meta: schema.SignalMeta{StrategyID: id}}, nil
}

// Compute runs the resolved strategy and stamps the resolution metadata onto
// the result.
func (res Resolution) Compute(window []schema.Candle, params Params) (schema.SignalResult, error) {
	out, err := res.Strategy.Compute(window, params)
	if err != nil {
		return schema.SignalResult{}, err
	}
	meta := res.Meta
	meta.StrategyID = out.Meta.StrategyID
	if meta.StrategyID == "" {
		meta.StrategyID = res.Strategy.ID()
	}
	out.Meta = meta
	return out, nil
}

func (r *Registry) ids() []string {
	out := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
