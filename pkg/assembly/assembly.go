// Package assembly merges orchestrator output into one Discovery graph and
// runs every registered link expander over it.
package assembly

import (
	"log/slog"

	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/explore"
)

// Expander correlates resources of one domain, attaching links to the
// Discovery. Expanders read the serialized document and must not mutate
// resource payloads; they may be registered and run in any order.
type Expander func(d *discovery.Discovery, doc map[string]interface{}) error

type registered struct {
	domain string
	fn     Expander
}

// Assembler builds the final graph. All exploration happens before
// Assemble; all graph mutation happens inside it, single-threaded.
type Assembler struct {
	expanders []registered
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Register adds a domain's link expander. Registering the same expander
// twice is harmless: expansion is idempotent by construction.
func (a *Assembler) Register(domain string, fn Expander) *Assembler {
	a.expanders = append(a.expanders, registered{domain: domain, fn: fn})
	return a
}

// Assemble folds collected resources into a Discovery, serializes it, and
// runs every expander. A failing expander (a bad selector is a programming
// error in its rules) is logged and skipped; it attaches nothing and does
// not corrupt links produced by other domains.
func (a *Assembler) Assemble(result explore.Result) (*discovery.Discovery, error) {
	d := discovery.New(result.Resources)

	doc, err := d.Serialize()
	if err != nil {
		return nil, err
	}

	for _, exp := range a.expanders {
		if err := exp.fn(d, doc); err != nil {
			a.logger.Error("link expansion failed for domain",
				"domain", exp.domain, "error", err)
		}
	}

	for _, f := range result.Failures {
		a.logger.Warn("discovery was partial",
			"provider", f.Provider, "unit", f.Unit, "error", f.Message)
	}
	return d, nil
}
