package inject

import (
	"github.com/rs/zerolog"
)

// Targets are the files a Patcher rewrites. They are resolved by the caller.
type Targets struct {
	// Core is the module whose type initializer gets the hook.
	Core string
	// Virtualize is the module to open up for overriding. Empty skips it.
	Virtualize string
}

// Patcher runs the whole patch pass over a host installation.
type Patcher struct {
	Identity    Identity
	Initializer Initializer
	Targets     Targets

	// BackupRoot holds the backup sets. BaseDir is the host directory the
	// targets are stored relative to inside a set.
	BackupRoot string
	BaseDir    string

	Log zerolog.Logger
}

// Report says what a Patcher run changed.
type Report struct {
	Initializer InitializerState
	// Backup is the name of the set files were backed up into, if any.
	Backup            string
	CoreWritten       bool
	VirtualizeWritten bool
}

// Wrote reports whether any file was written.
func (r *Report) Wrote() bool {
	return r.CoreWritten || r.VirtualizeWritten
}

// Run patches the core module, then virtualizes the second one. Every file is
// added to a backup set before it is written. When no earlier backup exists
// a set for the running identity is created the first time one is needed.
func (p *Patcher) Run() (*Report, error) {
	report := &Report{}

	p.Log.Debug().Msg("Finding backup")
	bkp, err := findLatestBackup(p.BackupRoot, p.BaseDir, func(dir string, err error) {
		p.Log.Warn().Err(err).Str("dir", dir).Msg("Ignoring unreadable backup set")
	})
	if err != nil {
		return report, err
	}
	if bkp == nil {
		p.Log.Warn().Str("root", p.BackupRoot).Msg("No backup found! Was the injector installed using the installer?")
	}

	backup := func(path string) error {
		if bkp == nil {
			set, err := OpenBackupSet(p.BackupRoot, p.BaseDir, p.Identity)
			if err != nil {
				return err
			}
			bkp = set
		}
		if err := bkp.Add(path); err != nil {
			return err
		}
		report.Backup = bkp.Name()
		p.Log.Debug().Str("path", path).Str("backup", bkp.Name()).Msg("Backed up")
		return nil
	}

	p.Log.Debug().Str("path", p.Targets.Core).Msg("Ensuring bootstrap patch exists")
	core, err := LoadModule(p.Targets.Core)
	if err != nil {
		return report, err
	}
	report.Initializer, err = p.Initializer.Install(core, p.Identity)
	if err != nil {
		return report, err
	}
	if core.Dirty() {
		if err := backup(core.Path); err != nil {
			return report, err
		}
		if err := core.Write(); err != nil {
			return report, err
		}
		report.CoreWritten = true
	}
	p.Log.Debug().Stringer("initializer", report.Initializer).Bool("written", report.CoreWritten).Msg("Bootstrap patch checked")

	if p.Targets.Virtualize == "" {
		return report, nil
	}

	p.Log.Debug().Str("path", p.Targets.Virtualize).Msg("Ensuring module is virtualized")
	vm, err := LoadVirtualModule(p.Targets.Virtualize)
	if err != nil {
		return report, err
	}
	report.VirtualizeWritten, err = vm.Virtualize(p.Identity, func() error {
		return backup(vm.Path)
	})
	return report, err
}
