package datasource

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/authority"
	"github.com/Borislavv/traffic-governor/pkg/degrade"
	"github.com/Borislavv/traffic-governor/pkg/flow"
	"github.com/Borislavv/traffic-governor/pkg/governor"
	"github.com/Borislavv/traffic-governor/pkg/hotparam"
	"github.com/Borislavv/traffic-governor/pkg/system"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

// RuleDocument is the on-disk shape of a complete rule set.
type RuleDocument struct {
	Flow      []*flow.Rule      `yaml:"flow"`
	Degrade   []*degrade.Rule   `yaml:"degrade"`
	Authority []*authority.Rule `yaml:"authority"`
	ParamFlow []*hotparam.Rule  `yaml:"param_flow"`
	System    []*system.Rule    `yaml:"system"`
}

// Converter turns a raw payload into a rule document. The default is yaml;
// push-based sources plug their own codec in.
type Converter func(raw []byte) (*RuleDocument, error)

// YamlConverter is the standard rule file codec.
func YamlConverter(raw []byte) (*RuleDocument, error) {
	var doc RuleDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal rule yaml: %w", err)
	}
	return &doc, nil
}

// FileSource polls a rule file and pushes changed content into the
// governor's managers. A load failure keeps the previously active set.
type FileSource struct {
	gov      *governor.Governor
	path     string
	interval time.Duration
	convert  Converter

	lastHash uint64
}

func NewFileSource(gov *governor.Governor, path string, interval time.Duration, convert Converter) *FileSource {
	if convert == nil {
		convert = YamlConverter
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &FileSource{gov: gov, path: path, interval: interval, convert: convert}
}

// Run polls until ctx is cancelled. The first refresh happens immediately.
func (s *FileSource) Run(ctx context.Context) {
	s.refresh()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.refresh()
		case <-ctx.Done():
			return
		}
	}
}

func (s *FileSource) refresh() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[rule-source] read failed")
		return
	}
	h := xxh3.Hash(raw)
	if h == s.lastHash {
		return
	}

	doc, err := s.convert(raw)
	if err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[rule-source] convert failed, keeping active rules")
		return
	}
	if err := Apply(s.gov, doc); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("[rule-source] load failed, keeping active rules")
		return
	}
	s.lastHash = h
	log.Info().Str("path", s.path).Msg("[rule-source] rules refreshed")
}

// Apply loads every section of the document into its manager. Each section
// is all-or-nothing on its own; other sections still apply.
func Apply(gov *governor.Governor, doc *RuleDocument) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(gov.FlowRules().LoadRules(doc.Flow))
	keep(gov.DegradeRules().LoadRules(doc.Degrade))
	keep(gov.AuthorityRules().LoadRules(doc.Authority))
	keep(gov.ParamRules().LoadRules(doc.ParamFlow))
	keep(gov.SystemRules().LoadRules(doc.System))
	return firstErr
}
