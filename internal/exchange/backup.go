package exchange

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/openclinic/healthdesk/internal/shared/errors"
	"github.com/openclinic/healthdesk/internal/shared/events"
	"github.com/openclinic/healthdesk/internal/shared/metrics"
	"github.com/openclinic/healthdesk/internal/storage"
)

// StorageInfo summarizes what the store currently holds.
type StorageInfo struct {
	TotalSize     int    `json:"totalSize"`
	PatientsCount int    `json:"patientsCount"`
	AlertsCount   int    `json:"alertsCount"`
	LastBackup    string `json:"lastBackup"`
	StorageUsed   string `json:"storageUsed"`
}

// CreateBackup snapshots the complete data set under the backup key and
// stamps the settings with the backup time.
func (s *Service) CreateBackup(ctx context.Context) error {
	snapshot := s.Snapshot()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal backup snapshot")
	}
	if err := s.kv.Set(storage.KeyBackupData, data); err != nil {
		return errors.Wrap(err, "write backup snapshot")
	}
	if err := s.store.StampLastBackup(); err != nil {
		return err
	}

	metrics.RecordBackupCreated()
	s.bus.Publish(ctx, events.NewEvent("backup.created", "exchange", map[string]any{
		"total_records": snapshot.TotalRecords,
	}))
	s.log.Info("backup created", zap.Int("total_records", snapshot.TotalRecords))
	return nil
}

// RestoreBackup replaces the live data with the stored snapshot. The
// snapshot goes through the same path as a JSON import, so it is
// normalized on the way in.
func (s *Service) RestoreBackup(ctx context.Context) error {
	data, err := s.kv.Get(storage.KeyBackupData)
	if err != nil {
		return errors.Wrap(err, "read backup snapshot")
	}
	if data == nil {
		return errors.NotFound("backup", "latest")
	}
	return s.ImportJSON(ctx, data)
}

// ClearAll deletes every stored collection, the backup included, and
// reseeds the defaults.
func (s *Service) ClearAll(ctx context.Context) error {
	for _, key := range storage.Keys() {
		if err := s.kv.Delete(key); err != nil {
			return errors.Wrap(err, fmt.Sprintf("delete %s", key))
		}
	}
	if err := s.store.Initialize(); err != nil {
		return err
	}

	s.bus.Publish(ctx, events.NewEvent("data.cleared", "exchange", nil))
	s.log.Info("all data cleared and defaults reseeded")
	return nil
}

// Info reports counts and the serialized footprint of the three main
// collections.
func (s *Service) Info() StorageInfo {
	patients := s.store.Patients()
	alerts := s.store.Alerts()
	settings := s.store.Settings()

	total := jsonSize(patients) + jsonSize(alerts) + jsonSize(settings)

	used := fmt.Sprintf("%d bytes", total)
	if total > 1024 {
		used = fmt.Sprintf("%.2f KB", float64(total)/1024)
	}

	return StorageInfo{
		TotalSize:     total,
		PatientsCount: len(patients),
		AlertsCount:   len(alerts),
		LastBackup:    settings.LastBackup,
		StorageUsed:   used,
	}
}

func jsonSize(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(data)
}
