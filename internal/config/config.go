// Package config defines the qalpha run configuration: the solver backend
// choice, transition-extraction switches, QF-domain size bounds,
// prefix-enumeration bounds, the domain-growth schedule, and driver
// behavior flags. Loaded from YAML then overridden by command-line flags,
// mirroring cmd/olm/main.go's layering of pflag over package defaults.
package config

import (
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Solver names one SMT backend family.
type Solver string

const (
	Z3   Solver = "z3"
	CVC5 Solver = "cvc5"
	CVC4 Solver = "cvc4"
)

// QFBody names a lemma quantifier-free body domain.
type QFBody string

const (
	CNF       QFBody = "cnf"
	PDnf      QFBody = "pdnf"
	PDnfNaive QFBody = "pdnf_naive"
)

// Config is the full recognized option surface (spec.md §6).
type Config struct {
	Solver  Solver `yaml:"solver" mapstructure:"solver"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"` // milliseconds, 0 = unlimited
	Seed    int    `yaml:"seed" mapstructure:"seed"`

	GradualSMT bool `yaml:"gradual_smt" mapstructure:"gradual_smt"`
	MinimalSMT bool `yaml:"minimal_smt" mapstructure:"minimal_smt"`
	Disj       bool `yaml:"disj" mapstructure:"disj"`

	QFBody     QFBody `yaml:"qf_body" mapstructure:"qf_body"`
	Clauses    int    `yaml:"clauses" mapstructure:"clauses"`
	ClauseSize int    `yaml:"clause_size" mapstructure:"clause_size"`
	Cubes      int    `yaml:"cubes" mapstructure:"cubes"`
	CubeSize   int    `yaml:"cube_size" mapstructure:"cube_size"`
	NonUnit    int    `yaml:"non_unit" mapstructure:"non_unit"`

	MaxQuant        int `yaml:"max_quant" mapstructure:"max_quant"`
	MaxSameSort     int `yaml:"max_same_sort" mapstructure:"max_same_sort"`
	MaxExistentials int `yaml:"max_existentials" mapstructure:"max_existentials"`
	MaxSize         int `yaml:"max_size" mapstructure:"max_size"`

	MinDomainSize int `yaml:"min_domain_size" mapstructure:"min_domain_size"`
	GrowthFactor  int `yaml:"growth_factor" mapstructure:"growth_factor"`

	ExtendWidth int `yaml:"extend_width" mapstructure:"extend_width"`
	ExtendDepth int `yaml:"extend_depth" mapstructure:"extend_depth"`

	UntilSafe   bool `yaml:"until_safe" mapstructure:"until_safe"`
	AbortUnsafe bool `yaml:"abort_unsafe" mapstructure:"abort_unsafe"`
	NoSearch    bool `yaml:"no_search" mapstructure:"no_search"`
	Fallback    bool `yaml:"fallback" mapstructure:"fallback"`
}

// Defaults returns the qalpha defaults block (FoundFixpoint's `defaults`).
func Defaults() Config {
	return Config{
		Solver:  Z3,
		Timeout: 0,
		Seed:    0,

		QFBody:     PDnf,
		Clauses:    6,
		ClauseSize: 4,
		Cubes:      6,
		CubeSize:   4,
		NonUnit:    3,

		MaxQuant:        6,
		MaxSameSort:     3,
		MaxExistentials: 0,
		MaxSize:         0,

		MinDomainSize: 100,
		GrowthFactor:  5,
	}
}

// Load reads path as YAML over the default configuration; a missing file is
// not an error (the defaults stand alone).
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "config: failed to read %s", path)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, errors.Wrapf(err, "config: failed to parse %s", path)
	}
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: failed to decode %s", path)
	}
	return cfg, nil
}

// BindFlags registers every option as a pflag, seeded with cfg's current
// values, so cmd/qalpha can layer explicit flags over a loaded file over
// the built-in defaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar((*string)(&c.Solver), "solver", string(c.Solver), "solver backend: z3, cvc5, or cvc4")
	fs.IntVar(&c.Timeout, "timeout", c.Timeout, "per-query timeout in milliseconds, 0 for unlimited")
	fs.IntVar(&c.Seed, "seed", c.Seed, "solver seed")

	fs.BoolVar(&c.GradualSMT, "gradual-smt", c.GradualSMT, "use the gradual frontier-advancement policy (transition counterexample extraction is unchanged)")
	fs.BoolVar(&c.MinimalSMT, "minimal-smt", c.MinimalSMT, "minimize extracted models by cardinality")
	fs.BoolVar(&c.Disj, "disj", c.Disj, "accepted for compatibility; has no effect on the search")

	fs.StringVar((*string)(&c.QFBody), "qf-body", string(c.QFBody), "lemma QF-body domain: cnf, pdnf, or pdnf_naive")
	fs.IntVar(&c.Clauses, "clauses", c.Clauses, "max clauses per CNF lemma")
	fs.IntVar(&c.ClauseSize, "clause-size", c.ClauseSize, "max literals per CNF clause")
	fs.IntVar(&c.Cubes, "cubes", c.Cubes, "max cubes per pDNF lemma")
	fs.IntVar(&c.CubeSize, "cube-size", c.CubeSize, "max literals per pDNF cube")
	fs.IntVar(&c.NonUnit, "non-unit", c.NonUnit, "max non-unit cubes per pDNF lemma")

	fs.IntVar(&c.MaxQuant, "max-quant", c.MaxQuant, "max bound variables in a lemma's prefix")
	fs.IntVar(&c.MaxSameSort, "max-same-sort", c.MaxSameSort, "max bound variables of one sort")
	fs.IntVar(&c.MaxExistentials, "max-existentials", c.MaxExistentials, "max existentially bound variables")
	fs.IntVar(&c.MaxSize, "max-size", c.MaxSize, "max approximate domain size explored, 0 for unbounded")

	fs.IntVar(&c.MinDomainSize, "min-domain-size", c.MinDomainSize, "initial active-domain size threshold")
	fs.IntVar(&c.GrowthFactor, "growth-factor", c.GrowthFactor, "geometric growth factor for the active-domain threshold")

	fs.IntVar(&c.ExtendWidth, "extend-width", c.ExtendWidth, "trace-extension sampling width, 0 to disable")
	fs.IntVar(&c.ExtendDepth, "extend-depth", c.ExtendDepth, "trace-extension sampling depth, 0 to disable")

	fs.BoolVar(&c.UntilSafe, "until-safe", c.UntilSafe, "stop growing the domain as soon as a fixpoint is safe")
	fs.BoolVar(&c.AbortUnsafe, "abort-unsafe", c.AbortUnsafe, "abort the whole run as soon as any domain proves unsafe")
	fs.BoolVar(&c.NoSearch, "no-search", c.NoSearch, "fix the domain to a single exact-prefix configuration")
	fs.BoolVar(&c.Fallback, "fallback", c.Fallback, "compose the main solver as a Fallback chain instead of Parallel")
}

// Validate rejects configurations the engine cannot act on.
func (c *Config) Validate() error {
	switch c.Solver {
	case Z3, CVC5, CVC4:
	default:
		return errors.Errorf("config: unknown solver %q", c.Solver)
	}
	switch c.QFBody {
	case CNF, PDnf, PDnfNaive:
	default:
		return errors.Errorf("config: unknown qf_body %q", c.QFBody)
	}
	if (c.ExtendWidth == 0) != (c.ExtendDepth == 0) {
		return errors.New("config: extend_width and extend_depth must be set together")
	}
	if c.MinDomainSize <= 0 {
		return errors.New("config: min_domain_size must be positive")
	}
	if c.GrowthFactor <= 1 {
		return errors.New("config: growth_factor must be greater than 1")
	}
	return nil
}
