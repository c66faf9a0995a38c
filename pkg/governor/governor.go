package governor

import (
	"github.com/Borislavv/traffic-governor/pkg/authority"
	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/cluster"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/core"
	"github.com/Borislavv/traffic-governor/pkg/degrade"
	"github.com/Borislavv/traffic-governor/pkg/flow"
	"github.com/Borislavv/traffic-governor/pkg/hotparam"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/Borislavv/traffic-governor/pkg/system"
	"github.com/rs/zerolog/log"
)

// Governor is the assembled traffic-governance instance: node tree, rule
// managers and the slot chain every Entry traverses. It is an explicit
// handle; construct one per process (or per test) instead of relying on
// package globals.
type Governor struct {
	cfg  *config.Governor
	clk  clock.Clock
	tree *node.Tree

	chain *core.SlotChain

	flowRules      *flow.Manager
	degradeRules   *degrade.Manager
	authorityRules *authority.Manager
	systemRules    *system.Manager
	paramRules     *hotparam.Manager

	sampler *system.Sampler
}

type options struct {
	cfg     *config.Governor
	clk     clock.Clock
	tokens  cluster.TokenService
	sampler *system.Sampler
	stats   []core.StatSlot
}

type Option func(*options)

// WithConfig overrides the default configuration.
func WithConfig(cfg *config.Governor) Option { return func(o *options) { o.cfg = cfg } }

// WithClock injects a custom time source, used by tests to run the window
// arithmetic deterministically.
func WithClock(clk clock.Clock) Option { return func(o *options) { o.clk = clk } }

// WithTokenService connects the remote cluster token server.
func WithTokenService(ts cluster.TokenService) Option { return func(o *options) { o.tokens = ts } }

// WithSampler replaces the default system sampler.
func WithSampler(s *system.Sampler) Option { return func(o *options) { o.sampler = s } }

// WithStatSlot appends an extra outcome observer (e.g. the metrics meter).
func WithStatSlot(s core.StatSlot) Option { return func(o *options) { o.stats = append(o.stats, s) } }

// New assembles a Governor with the canonical slot order: node selector and
// cluster builder prepare, then authority, system, param-flow, flow and
// degrade decide, and the log/statistic observers record the outcome.
func New(opts ...Option) *Governor {
	o := &options{}
	for _, apply := range opts {
		apply(o)
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.clk == nil {
		o.clk = clock.Default()
	}

	cfg, clk := o.cfg, o.clk
	tree := node.NewTree(clk, cfg)

	g := &Governor{
		cfg:            cfg,
		clk:            clk,
		tree:           tree,
		flowRules:      flow.NewManager(clk),
		degradeRules:   degrade.NewManager(),
		authorityRules: authority.NewManager(),
		systemRules:    system.NewManager(),
		paramRules:     hotparam.NewManager(clk, cfg.Governor.Stat.SampleCount, cfg.Governor.Stat.IntervalMs),
		sampler:        o.sampler,
	}

	paramSlot := hotparam.NewSlot(g.paramRules, clk, o.tokens)

	chain := core.NewSlotChain()
	chain.AddStatPrepareSlot(node.NewNodeSelectorSlot(tree))
	chain.AddStatPrepareSlot(node.NewClusterBuilderSlot(tree))
	chain.AddRuleCheckSlot(authority.NewSlot(g.authorityRules))
	chain.AddRuleCheckSlot(system.NewSlot(g.systemRules, tree, g.sampler))
	chain.AddRuleCheckSlot(paramSlot)
	chain.AddRuleCheckSlot(flow.NewSlot(g.flowRules, tree, clk, o.tokens))
	chain.AddRuleCheckSlot(degrade.NewSlot(g.degradeRules, tree))
	chain.AddStatSlot(core.NewLogSlot())
	chain.AddStatSlot(node.NewStatisticSlot(tree, cfg.Governor.Stat.MaxAllowedRtMs))
	chain.AddStatSlot(paramSlot)
	for _, s := range o.stats {
		chain.AddStatSlot(s)
	}
	g.chain = chain

	log.Info().Msg("[governor] slot chain assembled")
	return g
}

func (g *Governor) Tree() *node.Tree         { return g.tree }
func (g *Governor) Clock() clock.Clock       { return g.clk }
func (g *Governor) Config() *config.Governor { return g.cfg }
func (g *Governor) Chain() *core.SlotChain   { return g.chain }

func (g *Governor) FlowRules() *flow.Manager           { return g.flowRules }
func (g *Governor) DegradeRules() *degrade.Manager     { return g.degradeRules }
func (g *Governor) AuthorityRules() *authority.Manager { return g.authorityRules }
func (g *Governor) SystemRules() *system.Manager       { return g.systemRules }
func (g *Governor) ParamRules() *hotparam.Manager      { return g.paramRules }

// Stop releases background resources owned by the governor.
func (g *Governor) Stop() {
	if g.sampler != nil {
		g.sampler.Stop()
	}
}
