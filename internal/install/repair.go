package install

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/identity"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/localrecord"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/logging"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// RepairSource says where a repaired local record came from.
type RepairSource string

const (
	RepairFromLedger RepairSource = "ledger"     // own record pulled from the ledger
	RepairRegistered RepairSource = "registered" // instance was missing and has been registered
	RepairKeptLocal  RepairSource = "local"      // ledger unreachable, existing local record kept
	RepairDefault    RepairSource = "default"    // ledger unreachable, default record written
)

// RepairReport summarises one Repair.
type RepairReport struct {
	InstanceID string
	Source     RepairSource
	Record     ledger.LocalRecord
	Warning    string
}

// Repair brings the local record in line with the ledger. An instance whose
// first run fell back to the default grant is registered now, without a
// referrer. When the ledger cannot be reached an existing local record is
// kept and a missing one is replaced by the default grant.
func (in *Installer) Repair(ctx context.Context) (*RepairReport, error) {
	id, err := identity.Load(in.Paths.Identity)
	if err != nil {
		return nil, err
	}
	log := in.logger().With(zap.String("instance_id", id.UserID))
	report := &RepairReport{InstanceID: id.UserID}

	rec, _, err := in.Sync.Fetch(ctx, id.UserID)
	switch {
	case err == nil:
		report.Source = RepairFromLedger
		report.Record = rec.Local()

	case errors.Is(err, credit.ErrInstanceNotFound):
		res, syncErr := in.Sync.Sync(ctx, id.UserID, "")
		if syncErr != nil {
			return in.repairOffline(report, syncErr, log)
		}
		report.Source = RepairRegistered
		report.Record = res.Record.Local()

	default:
		return in.repairOffline(report, err, log)
	}

	if err := in.writeRecord(report.Record); err != nil {
		return report, err
	}
	logging.Event(log, logging.EventRecordRepaired,
		zap.String("source", string(report.Source)),
		zap.Int("referral_credits", report.Record.ReferralCredits))
	return report, nil
}

func (in *Installer) repairOffline(report *RepairReport, cause error, log *zap.Logger) (*RepairReport, error) {
	report.Warning = warnUnreachable

	existing, err := localrecord.Read(in.Paths.Record)
	if err == nil {
		report.Source = RepairKeptLocal
		report.Record = existing
		log.Warn("ledger unreachable during repair; keeping local record", zap.Error(cause))
		return report, nil
	}

	report.Source = RepairDefault
	report.Record = localrecord.Default(in.Policy)
	if err := in.writeRecord(report.Record); err != nil {
		return report, err
	}
	logging.EventAt(log, zap.WarnLevel, logging.EventFallbackRecordWritten,
		zap.String("path", in.Paths.Record), zap.Error(cause))
	return report, nil
}
