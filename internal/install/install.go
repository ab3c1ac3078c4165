// Package install runs the first-run bootstrap: issue the instance identity,
// register it in the shared ledger with its referrer, and leave a local
// credit record behind on every path.
//
// Only identity and local record storage failures are returned as errors.
// Ledger problems degrade the install to the default local grant with a
// single warning.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// ErrStorage matches identity and local record storage failures.
var ErrStorage = identity.ErrStorage

// RecordError reports a failed local record write.
type RecordError struct {
	Path string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("failed to write local record %s: %v", e.Path, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

func (e *RecordError) Is(target error) bool { return target == ErrStorage }

// Paths locates the local state files.
type Paths struct {
	Identity string
	Referrer string
	Record   string
}

// Installer wires the bootstrap steps together.
type Installer struct {
	Paths  Paths
	Sync   *ledgersync.Client
	Policy credit.Policy
	Logger *zap.Logger
	Now    func() time.Time
}

// Report summarises one Run.
type Report struct {
	InstanceID string
	FirstRun   bool
	Outcome    credit.Outcome // empty when the ledger was not updated
	Record     ledger.LocalRecord
	Degraded   bool          // the default record was written instead of the ledger copy
	Warning    string        // user-facing, set when Degraded
	Repaired   *RepairReport // set when an existing identity had no readable local record
}

const (
	warnUnreachable = "Could not update the referral ledger. Default credits were granted locally; run 'orchledger repair' once the ledger is reachable."
	warnDuplicate   = "This instance id is already registered in the referral ledger. Default credits were granted locally; no referral credit was applied."
)

func (in *Installer) logger() *zap.Logger {
	return logging.Component(in.Logger, "install")
}

func (in *Installer) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

// Run performs the first-run flow. On an already identified instance it
// returns with FirstRun false; the ledger is left alone unless the local
// record is missing or unreadable, in which case Repair restores it.
func (in *Installer) Run(ctx context.Context) (*Report, error) {
	id, created, err := identity.Ensure(in.Paths.Identity, in.now)
	if err != nil {
		return nil, err
	}
	if !created {
		return in.rerun(ctx, id.UserID)
	}

	log := in.logger().With(zap.String("instance_id", id.UserID))
	report := &Report{InstanceID: id.UserID, FirstRun: true}

	referrer := in.readReferrer(log)

	res, err := in.Sync.Sync(ctx, id.UserID, referrer)
	if err != nil {
		report.Degraded = true
		if errors.Is(err, credit.ErrDuplicateInstance) {
			report.Warning = warnDuplicate
		} else {
			report.Warning = warnUnreachable
		}
		report.Record = localrecord.Default(in.Policy)
		if err := in.writeRecord(report.Record); err != nil {
			return report, err
		}
		logging.EventAt(log, zapcore.WarnLevel, logging.EventFallbackRecordWritten,
			zap.String("path", in.Paths.Record),
			zap.Int("referral_credits", report.Record.ReferralCredits),
			zap.Error(err))
		return report, nil
	}

	report.Outcome = res.Outcome
	report.Record = res.Record.Local()
	if err := in.writeRecord(report.Record); err != nil {
		return report, err
	}
	return report, nil
}

func (in *Installer) rerun(ctx context.Context, id string) (*Report, error) {
	report := &Report{InstanceID: id, FirstRun: false}
	rec, err := localrecord.Read(in.Paths.Record)
	if err == nil {
		report.Record = rec
		return report, nil
	}

	// A previous run stopped between the identity and record writes.
	in.logger().Warn("local record unreadable on an installed instance; repairing",
		zap.String("instance_id", id), zap.String("path", in.Paths.Record), zap.Error(err))
	repaired, err := in.Repair(ctx)
	if repaired != nil {
		report.Repaired = repaired
		report.Record = repaired.Record
		report.Warning = repaired.Warning
	}
	return report, err
}

// readReferrer returns the trimmed referrer id, or "" when absent.
// An unreadable file is treated as no referrer.
func (in *Installer) readReferrer(log *zap.Logger) string {
	if in.Paths.Referrer == "" {
		return ""
	}
	data, err := os.ReadFile(in.Paths.Referrer)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("ignoring unreadable referrer file",
				zap.String("path", in.Paths.Referrer), zap.Error(err))
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (in *Installer) writeRecord(rec ledger.LocalRecord) error {
	if err := localrecord.Write(in.Paths.Record, rec); err != nil {
		return &RecordError{Path: in.Paths.Record, Err: err}
	}
	return nil
}
