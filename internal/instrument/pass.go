package instrument

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/tliron/commonlog"

	"printflog/internal/diag"
	"printflog/internal/ir"
)

var log = commonlog.GetLogger("printflog.instrument")

// Session holds everything one program's rewrite needs. It is created by
// the pass and discarded when the rewrite ends.
type Session struct {
	Program    *ir.Program
	Builder    *ir.Builder
	Registry   *Registry
	Processed  *ProcessedSet
	Classifier *Classifier
	Rewriter   *Rewriter
	LogHandle  *ir.Global
	OpenLog    *ir.Function
	CloseLog   *ir.Function
}

// NewSession declares the library routines, creates the log handle global
// and synthesises the open-log and close-log helpers
func NewSession(program *ir.Program) (*Session, error) {
	s := &Session{
		Program:   program,
		Builder:   ir.NewBuilder(program),
		Registry:  NewRegistry(program),
		Processed: NewProcessedSet(),
	}
	s.Classifier = NewClassifier(TargetRoutine, s.Processed)
	s.Rewriter = &Rewriter{session: s}

	if err := s.Registry.Init(); err != nil {
		return nil, err
	}

	handle, err := program.AddGlobal(LogHandleName, &ir.PointerType{}, ir.NewNull())
	if err != nil {
		return nil, errors.Wrap(err, "creating the log handle")
	}
	s.LogHandle = handle

	if s.OpenLog, err = BuildConditionalRoutine(s, OpenLogSpec()); err != nil {
		return nil, err
	}
	if s.CloseLog, err = BuildConditionalRoutine(s, CloseLogSpec()); err != nil {
		return nil, err
	}
	return s, nil
}

// Rescan returns the calls to the target routine still unprocessed
func (s *Session) Rescan() []CallSite {
	var sites []CallSite
	for _, fn := range s.Program.Functions {
		sites = append(sites, s.Classifier.ScanAll(fn)...)
	}
	return sites
}

// Report summarises one run of the pass
type Report struct {
	Program             string
	Skipped             bool // no main routine
	AlreadyInstrumented bool
	FunctionsScanned    int
	OrdinaryRewrites    int
	TerminatorRewrites  int
	ReturnsInstrumented int
}

// Rewrites returns the number of rewritten call sites
func (r *Report) Rewrites() int {
	return r.OrdinaryRewrites + r.TerminatorRewrites
}

func (r *Report) String() string {
	switch {
	case r.Skipped:
		return fmt.Sprintf("program %q skipped: no %s()", r.Program, EntryFunction)
	case r.AlreadyInstrumented:
		return fmt.Sprintf("program %q is already instrumented", r.Program)
	}
	return fmt.Sprintf("program %q: %d functions scanned, %d ordinary and %d terminator calls rewritten, %d returns instrumented",
		r.Program, r.FunctionsScanned, r.OrdinaryRewrites, r.TerminatorRewrites, r.ReturnsInstrumented)
}

// Pass logs every printf call of a program to a file through fprintf
type Pass struct {
	// Diagnostics receives the one-line message emitted when main is missing
	Diagnostics io.Writer

	session *Session
	report  *Report
}

// NewPass creates a pass writing diagnostics to stderr
func NewPass() *Pass {
	return &Pass{Diagnostics: os.Stderr}
}

func (p *Pass) Name() string {
	return "PrintfLogging"
}

func (p *Pass) Description() string {
	return "Duplicates printf calls into fprintf calls on a log file opened in main"
}

// Apply runs the pass as a pipeline step
func (p *Pass) Apply(program *ir.Program) (bool, error) {
	report, err := p.Run(program)
	if err != nil {
		return false, err
	}
	return !report.Skipped && !report.AlreadyInstrumented, nil
}

// Report returns the report of the last run
func (p *Pass) Report() *Report {
	return p.report
}

// Session returns the session of the last run, nil when nothing was rewritten
func (p *Pass) Session() *Session {
	return p.session
}

// Run instruments program in place
func (p *Pass) Run(program *ir.Program) (*Report, error) {
	report := &Report{Program: program.Name}
	p.report = report
	p.session = nil

	main := program.Function(EntryFunction)
	if main == nil {
		d := diag.MissingMain(program.Name)
		if p.Diagnostics != nil {
			fmt.Fprintln(p.Diagnostics, d.Message)
		}
		log.Warning(d.Message)
		report.Skipped = true
		return report, nil
	}
	if program.Function(OpenLogName) != nil {
		log.Noticef("program %q already carries @%s, leaving it untouched", program.Name, OpenLogName)
		report.AlreadyInstrumented = true
		return report, nil
	}

	// helpers are appended to the function list, only the original ones are scanned
	functions := append([]*ir.Function(nil), program.Functions...)

	s, err := NewSession(program)
	if err != nil {
		return report, err
	}
	p.session = s

	if err := p.injectEntry(s, main); err != nil {
		return report, err
	}
	report.ReturnsInstrumented = p.injectExits(s, main)

	for _, fn := range functions {
		if IsReserved(fn.Name) {
			log.Debugf("skipping generated function @%s", fn.Name)
			continue
		}
		if err := p.processFunction(s, fn, report); err != nil {
			return report, errors.Wrapf(err, "instrumenting @%s", fn.Name)
		}
		report.FunctionsScanned++
	}

	log.Info(report.String())
	return report, nil
}

// injectEntry calls open-log at the first insertion point of main
func (p *Pass) injectEntry(s *Session, main *ir.Function) error {
	if main.Entry == nil {
		return invariantf("@%s has no entry block", main.Name)
	}
	s.Builder.SetInsertAtStart(main.Entry)
	s.Builder.CreateCall(&ir.VoidType{}, s.OpenLog.Value, nil, "")
	return nil
}

// injectExits calls close-log right before every return of main
func (p *Pass) injectExits(s *Session, main *ir.Function) int {
	count := 0
	for _, block := range main.Blocks {
		if _, ok := block.Terminator.(*ir.ReturnTerminator); !ok {
			continue
		}
		s.Builder.SetInsertPoint(block)
		s.Builder.CreateCall(&ir.VoidType{}, s.CloseLog.Value, nil, "")
		count++
	}
	return count
}

// processFunction rewrites call sites until the scan finds none. Ordinary
// rewrites resume after the split; terminator rewrites restart the scan.
func (p *Pass) processFunction(s *Session, fn *ir.Function, report *Report) error {
	cursor := Cursor{}
	for {
		site, ok := s.Classifier.Scan(fn, cursor)
		if !ok {
			return nil
		}
		log.Debugf("rewriting %s", site)

		switch site.Kind {
		case OrdinaryCall:
			next, err := s.Rewriter.RewriteOrdinary(site)
			if err != nil {
				return err
			}
			cursor = next
			report.OrdinaryRewrites++
		case TerminatorCall:
			if err := s.Rewriter.RewriteTerminator(site); err != nil {
				return err
			}
			cursor = Cursor{}
			report.TerminatorRewrites++
		default:
			return invariantf("unknown call site kind %d", site.Kind)
		}
	}
}
