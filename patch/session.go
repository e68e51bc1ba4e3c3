package patch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"

	"github.com/dhamidi/dexpatch/errz"
	"github.com/dhamidi/dexpatch/program"
	"github.com/dhamidi/dexpatch/proxy"
)

var log = commonlog.GetLogger("dexpatch.patch")

type Status int

const (
	StatusApplied Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result records what happened to one patch.
type Result struct {
	Patch    string
	Status   Status
	Err      error
	Duration time.Duration
}

// Session applies patches to one program. Patches run one after another;
// edits of earlier patches are visible to later ones through the shared
// proxy manager.
type Session struct {
	id      string
	pkg     string
	ctx     *Context
	results []Result
}

// NewSession starts a session over p. pkg is the application package used
// to filter patches by compatibility; empty disables filtering.
func NewSession(p *program.Program, pkg string, opts Options) *Session {
	return &Session{
		id:  uuid.NewString(),
		pkg: pkg,
		ctx: &Context{
			Program: p,
			Proxies: proxy.NewManager(p),
			Options: opts,
		},
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Context() *Context { return s.ctx }

// Run executes patches in order. A failing patch is rolled back and the
// session continues with the next one; all failures are returned together.
func (s *Session) Run(patches ...*Patch) error {
	var errs *multierror.Error
	for _, p := range patches {
		if err := s.run(p); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("patch %q: %w", p.Name, err))
		}
	}
	return errs.ErrorOrNil()
}

func (s *Session) run(p *Patch) error {
	if !p.CompatibleWith(s.pkg) {
		log.Infof("[%s] skipping %q: not compatible with %s", s.id, p.Name, s.pkg)
		s.results = append(s.results, Result{Patch: p.Name, Status: StatusSkipped})
		return nil
	}

	log.Infof("[%s] applying %q", s.id, p.Name)
	start := time.Now()
	sp := s.ctx.Proxies.Savepoint()

	var err error
	if p.Execute == nil {
		err = errz.New(errz.Invalid, p.Name, "patch has nothing to execute")
	} else {
		err = p.Execute(s.ctx)
	}

	res := Result{Patch: p.Name, Status: StatusApplied, Duration: time.Since(start)}
	if err != nil {
		s.ctx.Proxies.Restore(sp)
		log.Errorf("[%s] %q failed: %s", s.id, p.Name, err)
		res.Status = StatusFailed
		res.Err = err
	} else {
		log.Infof("[%s] applied %q in %s", s.id, p.Name, res.Duration)
	}
	s.results = append(s.results, res)
	return err
}

// Results returns one entry per patch run so far, in run order.
func (s *Session) Results() []Result {
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Replacements returns the (original, replacement) pairs for every class
// touched by a successful patch.
func (s *Session) Replacements() ([]program.Replacement, error) {
	return s.ctx.Proxies.Replacements()
}

// Output returns the patched program.
func (s *Session) Output() (*program.Program, error) {
	return s.ctx.Proxies.Commit()
}
